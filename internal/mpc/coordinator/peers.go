package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// PeerClient starts sessions on other party nodes through their HTTP API.
type PeerClient struct {
	urls []string
	http *http.Client
}

func NewPeerClient(urls []string, timeout time.Duration) *PeerClient {
	return &PeerClient{
		urls: urls,
		http: &http.Client{Timeout: timeout},
	}
}

func (p *PeerClient) Peers() []string {
	return p.urls
}

// TriggerSign asks every peer to join the signing session of room.
func (p *PeerClient) TriggerSign(ctx context.Context, room string, req SignTrigger) error {
	return p.post(ctx, "sign", room, req)
}

// TriggerKeygen asks every peer to join the keygen session of room. Peers are
// assigned indices by the relay.
func (p *PeerClient) TriggerKeygen(ctx context.Context, room string, req KeygenTrigger) error {
	return p.post(ctx, "keygen", room, req)
}

func (p *PeerClient) post(ctx context.Context, action string, room string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal trigger")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, base := range p.urls {
		base := base
		g.Go(func() error {
			endpoint := fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), action, url.PathEscape(room))
			req, err := http.NewRequestWithContext(gctx, http.MethodPost, endpoint, bytes.NewReader(payload))
			if err != nil {
				return errors.Wrapf(err, "failed to build request for %s", endpoint)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := p.http.Do(req)
			if err != nil {
				return errors.Wrapf(err, "peer %s unreachable", base)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
				msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return errors.Errorf("peer %s refused %s: status %d: %s", base, action, resp.StatusCode, bytes.TrimSpace(msg))
			}

			log.Debug().Str("peer", base).Str("room", room).Str("action", action).Msg("Triggered peer session")
			return nil
		})
	}
	return g.Wait()
}
