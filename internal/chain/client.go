package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client is a read-only RPC client used to check custody balances.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	retry     RetryPolicy
}

// Head pins an audit to one block.
type Head struct {
	ChainID *big.Int
	Number  uint64
	Time    uint64
}

// NewClient dials rpcURL. Head lookups are retried under retry.
func NewClient(ctx context.Context, rpcURL string, retry RetryPolicy) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		retry:     retry,
	}, nil
}

func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// Head resolves number, or the latest block when number is zero.
func (c *Client) Head(ctx context.Context, number uint64) (Head, error) {
	var head Head
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		id, err := c.ethClient.ChainID(ctx)
		if err != nil {
			return fmt.Errorf("chain id: %w", err)
		}
		head.ChainID = id
		return nil
	})
	if err != nil {
		return Head{}, err
	}

	var query *big.Int
	if number > 0 {
		query = new(big.Int).SetUint64(number)
	}
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		header, err := c.ethClient.HeaderByNumber(ctx, query)
		if err != nil {
			return fmt.Errorf("header %v: %w", query, err)
		}
		head.Number = header.Number.Uint64()
		head.Time = header.Time
		return nil
	})
	if err != nil {
		return Head{}, err
	}
	return head, nil
}

// CallContract performs an eth_call. Callers retry.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}
