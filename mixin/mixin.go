// Package mixin adapts Mixin network asset metadata and market quotes to
// the pool's asset registry and price feed.
package mixin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fox-one/mixin-sdk-go/v2"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vegalend/core/core"
)

// AssetFromSafe maps a Mixin safe asset onto the pool's asset registry
// record. Precision becomes the native fixed-point scale of all principal
// amounts in that asset's market.
func AssetFromSafe(assetId uuid.UUID, asset *mixin.SafeAsset) *core.Asset {
	return &core.Asset{
		AssetId:      assetId,
		ChainAssetId: asset.AssetID,
		Symbol:       asset.Symbol,
		Name:         asset.Name,
		Decimals:     asset.Precision,
	}
}

type (
	// marketInfo is the subset of the market API payload the oracle needs.
	marketInfo struct {
		CoinID       string          `json:"coin_id"`
		Symbol       string          `json:"symbol"`
		CurrentPrice decimal.Decimal `json:"current_price"`
		High24H      decimal.Decimal `json:"high_24h"`
		Low24H       decimal.Decimal `json:"low_24h"`
		UpdatedAt    time.Time       `json:"updated_at"`
	}

	errorResponse struct {
		Error struct {
			Status      int    `json:"status"`
			Code        int    `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}

	APIError struct {
		StatusCode  int
		Code        int
		Description string
	}
)

func (e *APIError) Error() string {
	return fmt.Sprintf("market API error: status=%d, code=%d, description=%s",
		e.StatusCode, e.Code, e.Description)
}

// Oracle serves numeraire prices from the Mixin market API, resolving the
// pool's asset ids to chain asset ids through the asset registry.
type Oracle struct {
	endpoint string
	client   *http.Client
	assets   core.AssetStore
}

func NewOracle(endpoint string, assets core.AssetStore) *Oracle {
	return &Oracle{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		assets:   assets,
	}
}

// Price implements core.PriceAdapter. The reference price is the midpoint
// of the 24h band, standing in for a time-weighted average.
func (o *Oracle) Price(ctx context.Context, assetId uuid.UUID) (*core.PriceFeed, error) {
	asset, err := o.assets.GetAsset(ctx, assetId)
	if err != nil {
		return nil, errors.Wrap(err, "resolve chain asset")
	}

	info, err := o.fetchMarket(ctx, asset.ChainAssetId)
	if err != nil {
		return nil, err
	}

	price := core.NewDec(info.CurrentPrice, core.WadScale)
	two := core.NewDecFromInt(2, 0)
	mid, err := core.NewDec(info.High24H.Add(info.Low24H), core.WadScale).DivHalfUp(two, core.WadScale)
	if err != nil {
		return nil, err
	}

	return &core.PriceFeed{
		AssetId:   assetId,
		Price:     price,
		Reference: mid,
		Decimals:  asset.Decimals,
		Timestamp: info.UpdatedAt.Unix(),
	}, nil
}

func (o *Oracle) fetchMarket(ctx context.Context, chainAssetId string) (*marketInfo, error) {
	url := fmt.Sprintf("%s/markets/%s", o.endpoint, chainAssetId)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch market")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		if err := json.Unmarshal(body, &er); err == nil && er.Error.Code != 0 {
			return nil, &APIError{
				StatusCode:  resp.StatusCode,
				Code:        er.Error.Code,
				Description: er.Error.Description,
			}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Description: string(body)}
	}

	var payload struct {
		Data marketInfo `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "decode market payload")
	}
	return &payload.Data, nil
}
