// Package rpc serves the vault runtime over gRPC and provides the matching
// client used by vaultctl.
package rpc

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/pdavault/address"
	"xdao.co/pdavault/instruction"
	"xdao.co/pdavault/ledger"
)

// Client talks to a remote Vault service. Errors carry errs kinds.
type Client struct {
	cc     *grpc.ClientConn
	client VaultClient

	// Timeout applies per RPC when non-zero.
	Timeout time.Duration
}

type DialOptions struct {
	Timeout time.Duration
}

func Dial(target string, opts DialOptions) (*Client, error) {
	cc, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errors.Wrapf(err, "rpc: dial %s", target)
	}
	return NewClient(cc, opts.Timeout), nil
}

func NewClient(cc *grpc.ClientConn, timeout time.Duration) *Client {
	return &Client{cc: cc, client: NewVaultClient(cc), Timeout: timeout}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// Submit sends a signed transaction and returns the snapshot CID the server
// recorded for it, or "" when the server keeps no snapshots.
func (c *Client) Submit(ctx context.Context, tx *instruction.Transaction) (string, error) {
	data, err := tx.Marshal()
	if err != nil {
		return "", err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Submit(ctx, wrapperspb.Bytes(data))
	if err != nil {
		return "", fromStatus(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) Account(ctx context.Context, addr address.Address) (ledger.Account, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.GetAccount(ctx, wrapperspb.String(addr.String()))
	if err != nil {
		return ledger.Account{}, fromStatus(err)
	}
	var acct ledger.Account
	if err := acct.UnmarshalBinary(reply.GetValue()); err != nil {
		return ledger.Account{}, errors.Wrap(err, "rpc: decode account")
	}
	return acct, nil
}

func (c *Client) Fund(ctx context.Context, addr address.Address, lamports uint64) (string, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Fund(ctx, wrapperspb.Bytes(EncodeFundRequest(addr, lamports)))
	if err != nil {
		return "", fromStatus(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}
