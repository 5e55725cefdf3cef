package clog

import "bytes"

// withBuffer 测试专用选项，将日志写入缓冲区
func withBuffer(buf *bytes.Buffer) Option {
	return WithWriter(buf)
}
