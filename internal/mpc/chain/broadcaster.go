package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

// Broadcaster 通过 JSON-RPC 提交已签名交易
type Broadcaster struct {
	client *rpc.Client
}

func DialBroadcaster(ctx context.Context, rawURL string) (*Broadcaster, error) {
	client, err := rpc.DialContext(ctx, rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial chain rpc %s", rawURL)
	}
	return &Broadcaster{client: client}, nil
}

// SendRawTransaction 调用 eth_sendRawTransaction，返回交易哈希
func (b *Broadcaster) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var hash common.Hash
	if err := b.client.CallContext(ctx, &hash, "eth_sendRawTransaction", hexutil.Encode(raw)); err != nil {
		return common.Hash{}, errors.Wrap(err, "eth_sendRawTransaction failed")
	}
	return hash, nil
}

func (b *Broadcaster) Close() {
	b.client.Close()
}
