package eth

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/tribes-lab/backend/config"
	"github.com/tribes-lab/backend/pkg/xcontext"
)

var (
	RpcTimeOut      = time.Second * 5
	refreshInterval = time.Minute * 5
)

// A wrapper around ethclient so that we can mock in gateway tests.
type EthClient interface {
	Start(ctx context.Context)
	Stop()

	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error)
}

// Default implementation. Public RPC endpoints are unstable and rate limited,
// so the client keeps every configured endpoint, probes their health on a
// timer and spreads calls across the ones that answer.
type defaultEthClient struct {
	chain string
	rpcs  []string

	clients []*ethclient.Client
	healthy []bool

	lock sync.RWMutex
	stop chan struct{}
	once sync.Once
}

func NewEthClient(cfg config.ChainConfig) *defaultEthClient {
	return &defaultEthClient{
		chain: cfg.Chain,
		rpcs:  cfg.Rpcs,
		stop:  make(chan struct{}),
	}
}

func (c *defaultEthClient) Start(ctx context.Context) {
	go c.loopCheck(ctx)
}

func (c *defaultEthClient) Stop() {
	c.once.Do(func() { close(c.stop) })
}

func (c *defaultEthClient) loopCheck(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.refresh(ctx)
		}
	}
}

func (c *defaultEthClient) refresh(ctx context.Context) {
	clients := make([]*ethclient.Client, 0, len(c.rpcs))
	healthy := make([]bool, 0, len(c.rpcs))

	for _, rpc := range c.rpcs {
		client, err := ethclient.Dial(rpc)
		if err != nil {
			xcontext.Logger(ctx).Warnf("Cannot dial rpc %s of chain %s: %v", rpc, c.chain, err)
			clients = append(clients, nil)
			healthy = append(healthy, false)
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, RpcTimeOut)
		_, err = client.BlockNumber(probeCtx)
		cancel()

		clients = append(clients, client)
		healthy = append(healthy, err == nil)
	}

	c.lock.Lock()
	old := c.clients
	c.clients, c.healthy = clients, healthy
	c.lock.Unlock()

	for _, client := range old {
		if client != nil {
			client.Close()
		}
	}
}

// pick returns a random healthy client so consecutive calls hit different
// endpoints.
func (c *defaultEthClient) pick(ctx context.Context) (*ethclient.Client, error) {
	c.lock.RLock()
	initialized := c.clients != nil
	c.lock.RUnlock()

	if !initialized {
		c.refresh(ctx)
	}

	c.lock.RLock()
	defer c.lock.RUnlock()

	candidates := []*ethclient.Client{}
	for i, ok := range c.healthy {
		if ok {
			candidates = append(candidates, c.clients[i])
		}
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no healthy rpc for chain %s", c.chain)
	}

	return candidates[rand.Intn(len(candidates))], nil
}

func (c *defaultEthClient) execute(ctx context.Context, f func(client *ethclient.Client) (any, error)) (any, error) {
	client, err := c.pick(ctx)
	if err != nil {
		return nil, err
	}

	return f(client)
}

func (c *defaultEthClient) CallContract(
	ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int,
) ([]byte, error) {
	ret, err := c.execute(ctx, func(client *ethclient.Client) (any, error) {
		return client.CallContract(ctx, msg, blockNumber)
	})
	if err != nil {
		return nil, err
	}

	return ret.([]byte), nil
}

func (c *defaultEthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	ret, err := c.execute(ctx, func(client *ethclient.Client) (any, error) {
		return client.PendingNonceAt(ctx, account)
	})
	if err != nil {
		return 0, err
	}

	return ret.(uint64), nil
}

func (c *defaultEthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	ret, err := c.execute(ctx, func(client *ethclient.Client) (any, error) {
		return client.SuggestGasPrice(ctx)
	})
	if err != nil {
		return nil, err
	}

	return ret.(*big.Int), nil
}

func (c *defaultEthClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	ret, err := c.execute(ctx, func(client *ethclient.Client) (any, error) {
		return client.EstimateGas(ctx, msg)
	})
	if err != nil {
		return 0, err
	}

	return ret.(uint64), nil
}

func (c *defaultEthClient) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	_, err := c.execute(ctx, func(client *ethclient.Client) (any, error) {
		return nil, client.SendTransaction(ctx, tx)
	})

	return err
}

func (c *defaultEthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	ret, err := c.execute(ctx, func(client *ethclient.Client) (any, error) {
		return client.TransactionReceipt(ctx, txHash)
	})
	if err != nil {
		return nil, err
	}

	return ret.(*ethtypes.Receipt), nil
}

func (c *defaultEthClient) BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error) {
	ret, err := c.execute(ctx, func(client *ethclient.Client) (any, error) {
		return client.BalanceAt(ctx, account, block)
	})
	if err != nil {
		return nil, err
	}

	return ret.(*big.Int), nil
}
