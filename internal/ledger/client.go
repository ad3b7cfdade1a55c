// Package ledger is the thin client for the external voucher service, which
// owns voucher persistence and numbering.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"autopost-engine/internal/domain"
	"autopost-engine/pkg/logger"
)

// Service persists a balanced voucher and returns its id and human number.
type Service interface {
	CreateVoucher(ctx context.Context, draft *domain.VoucherDraft) (*domain.CreatedVoucher, error)
}

type client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) Service {
	return &client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *client) CreateVoucher(ctx context.Context, draft *domain.VoucherDraft) (*domain.CreatedVoucher, error) {
	body, err := json.Marshal(draft)
	if err != nil {
		return nil, fmt.Errorf("encode voucher draft: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/vouchers", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Ledger service call failed")
		return nil, fmt.Errorf("create voucher: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("create voucher: ledger service returned %d: %s", resp.StatusCode, data)
	}

	var created domain.CreatedVoucher
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode ledger response: %w", err)
	}
	return &created, nil
}
