package blockchain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/clmm-engine/internal/common"
	"github.com/hxuan190/clmm-engine/internal/domain"
	"github.com/hxuan190/clmm-engine/internal/metrics"
)

const getMultipleAccounts = "getMultipleAccounts"

// maxAccountsPerRequest is the RPC limit for getMultipleAccounts.
const maxAccountsPerRequest = 100

// AccountFetcher is the slice of the solana-go RPC client the source needs.
type AccountFetcher interface {
	GetMultipleAccountsWithOpts(ctx context.Context, accounts []solana.PublicKey, opts *rpc.GetMultipleAccountsOpts) (*rpc.GetMultipleAccountsResult, error)
}

type SourceConfig struct {
	ProgramID  solana.PublicKey
	Commitment rpc.CommitmentType
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	CacheSize  int
	CacheTTL   time.Duration
}

// AccountSource reads pool, fee tier and tick array accounts over RPC. Raw account
// bytes are kept in a TTL-bounded LRU shared by every pool.
type AccountSource struct {
	rpc      AccountFetcher
	cfg      SourceConfig
	accounts *BoundedLRUCache[solana.PublicKey, []byte]
}

func NewAccountSource(fetcher AccountFetcher, cfg SourceConfig) *AccountSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = common.RaydiumCLMMProgramID
	}
	return &AccountSource{
		rpc:      fetcher,
		cfg:      cfg,
		accounts: NewBoundedLRUCache[solana.PublicKey, []byte](cfg.CacheSize, cfg.CacheTTL),
	}
}

func (s *AccountSource) ProgramID() solana.PublicKey {
	return s.cfg.ProgramID
}

// LoadPool fetches the pool account, bypassing the account cache, plus its fee tier.
func (s *AccountSource) LoadPool(ctx context.Context, address solana.PublicKey) (*domain.PoolState, error) {
	data, err := s.fetch(ctx, []solana.PublicKey{address}, true)
	if err != nil {
		return nil, err
	}
	if data[0] == nil {
		return nil, fmt.Errorf("%w: pool %s does not exist", common.ErrInsufficientData, address)
	}
	state, err := DecodePoolState(address, s.cfg.ProgramID, data[0])
	if err != nil {
		return nil, err
	}

	cfgData, err := s.fetch(ctx, []solana.PublicKey{state.AmmConfig}, false)
	if err != nil {
		return nil, err
	}
	if cfgData[0] == nil {
		return nil, fmt.Errorf("%w: amm config %s does not exist", common.ErrInsufficientData, state.AmmConfig)
	}
	ammConfig, err := DecodeAmmConfig(cfgData[0])
	if err != nil {
		return nil, err
	}
	state.FeeRate = ammConfig.TradeFeeRate
	return state, nil
}

// FetchTickArray returns nil without error when the account does not exist.
func (s *AccountSource) FetchTickArray(ctx context.Context, address solana.PublicKey) (*domain.TickArray, error) {
	data, err := s.fetch(ctx, []solana.PublicKey{address}, false)
	if err != nil {
		metrics.TickArrayFetches.WithLabelValues("error").Inc()
		return nil, err
	}
	if data[0] == nil {
		metrics.TickArrayFetches.WithLabelValues("missing").Inc()
		return nil, nil
	}
	ta, err := DecodeTickArray(address, data[0])
	if err != nil {
		metrics.TickArrayFetches.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.TickArrayFetches.WithLabelValues("ok").Inc()
	return ta, nil
}

// WarmTickArrays loads many tick array accounts into the account cache in batched calls.
func (s *AccountSource) WarmTickArrays(ctx context.Context, addresses []solana.PublicKey) error {
	_, err := s.fetch(ctx, addresses, false)
	return err
}

// fetch returns account data in request order; missing accounts are nil.
func (s *AccountSource) fetch(ctx context.Context, keys []solana.PublicKey, fresh bool) ([][]byte, error) {
	out := make([][]byte, len(keys))
	missing := make([]int, 0, len(keys))
	for i, k := range keys {
		if !fresh {
			if data, ok := s.accounts.Get(k); ok {
				out[i] = data
				continue
			}
		}
		missing = append(missing, i)
	}

	for len(missing) > 0 {
		n := min(len(missing), maxAccountsPerRequest)
		batch := missing[:n]
		missing = missing[n:]

		req := make([]solana.PublicKey, len(batch))
		for j, idx := range batch {
			req[j] = keys[idx]
		}
		res, err := s.getMultipleAccounts(ctx, req)
		if err != nil {
			return nil, err
		}
		for j, acc := range res.Value {
			if j >= len(batch) {
				break
			}
			if acc == nil || acc.Data == nil {
				s.accounts.Delete(req[j])
				continue
			}
			data := acc.Data.GetBinary()
			out[batch[j]] = data
			s.accounts.Set(req[j], data)
		}
	}
	metrics.AccountCacheSize.Set(float64(s.accounts.Size()))
	return out, nil
}

func (s *AccountSource) getMultipleAccounts(ctx context.Context, keys []solana.PublicKey) (*rpc.GetMultipleAccountsResult, error) {
	opts := &rpc.GetMultipleAccountsOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: s.cfg.Commitment,
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * s.cfg.RetryDelay):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		res, err := s.rpc.GetMultipleAccountsWithOpts(callCtx, keys, opts)
		cancel()
		if err == nil && res != nil && res.Value != nil {
			metrics.RPCRequests.WithLabelValues(getMultipleAccounts, "ok").Inc()
			return res, nil
		}
		if err == nil {
			err = errors.New("empty response")
		}
		lastErr = err
		metrics.RPCRequests.WithLabelValues(getMultipleAccounts, "error").Inc()
		log.Debug().Err(err).Int("attempt", attempt+1).Int("accounts", len(keys)).Msg("[rpcSource] getMultipleAccounts failed")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", common.ErrInsufficientData, getMultipleAccounts, s.cfg.Retries+1, lastErr)
}
