package connector

import (
	"context"
	"sync/atomic"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/flake/clog"
	"github.com/ceyewan/flake/xerrors"
)

const etcdHealthKey = "flake/health-check"

type etcdConnector struct {
	cfg     *EtcdConfig
	client  *clientv3.Client
	logger  clog.Logger
	inst    *instruments
	healthy atomic.Bool
	closed  atomic.Bool
}

// NewEtcd 创建 Etcd 连接器
//
// clientv3.New 不会阻塞等待连接建立，可用性由 Connect 验证。
func NewEtcd(cfg *EtcdConfig, opts ...Option) (EtcdConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "etcd config is nil")
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	opt := applyOptions(opts)
	inst, err := newInstruments(opt.meter, "etcd", c.Name)
	if err != nil {
		return nil, xerrors.Wrap(err, "create etcd connector metrics")
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:            c.Endpoints,
		Username:             c.Username,
		Password:             c.Password,
		DialTimeout:          c.DialTimeout,
		DialKeepAliveTime:    c.KeepAliveTime,
		DialKeepAliveTimeout: c.KeepAliveTimeout,
	})
	if err != nil {
		return nil, xerrors.Wrapf(xerrors.Join(ErrConnection, err), "etcd connector[%s]", c.Name)
	}

	return &etcdConnector{
		cfg:    &c,
		client: client,
		logger: opt.logger.With(clog.String("connector", "etcd"), clog.String("name", c.Name)),
		inst:   inst,
	}, nil
}

func (c *etcdConnector) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrAlreadyClosed
	}

	err := c.ping(ctx)
	c.inst.observeConnect(ctx, err)
	if err != nil {
		c.healthy.Store(false)
		c.logger.Error("failed to connect to etcd", clog.Error(err), clog.Any("endpoints", c.cfg.Endpoints))
		return xerrors.Wrapf(xerrors.Join(ErrConnection, err), "etcd connector[%s]", c.cfg.Name)
	}

	c.healthy.Store(true)
	c.logger.Info("connected to etcd", clog.Any("endpoints", c.cfg.Endpoints))
	return nil
}

// ping 读一个不存在的 key，空结果即代表连接可用
func (c *etcdConnector) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()
	_, err := c.client.Get(ctx, etcdHealthKey)
	return err
}

func (c *etcdConnector) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.healthy.Store(false)
	c.inst.setHealthy(context.Background(), false)

	if err := c.client.Close(); err != nil {
		c.logger.Error("failed to close etcd connection", clog.Error(err))
		return err
	}
	c.logger.Info("etcd connection closed")
	return nil
}

func (c *etcdConnector) HealthCheck(ctx context.Context) error {
	if c.closed.Load() {
		return ErrAlreadyClosed
	}
	if err := c.ping(ctx); err != nil {
		c.healthy.Store(false)
		c.inst.setHealthy(ctx, false)
		c.logger.Warn("etcd health check failed", clog.Error(err))
		return xerrors.Wrapf(xerrors.Join(ErrHealthCheck, err), "etcd connector[%s]", c.cfg.Name)
	}
	c.healthy.Store(true)
	c.inst.setHealthy(ctx, true)
	return nil
}

func (c *etcdConnector) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *etcdConnector) Name() string {
	return c.cfg.Name
}

func (c *etcdConnector) GetClient() *clientv3.Client {
	return c.client
}
