package batchtx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/log"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/holiman/uint256"
)

// Quoter returns a ready-to-execute swap route.
type Quoter interface {
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
}

// QuoteRequest asks an aggregator for a route.
type QuoteRequest struct {
	SellToken   common.Address
	BuyToken    common.Address
	SellAmount  *big.Int
	Taker       common.Address // account that executes the swap; the router when left zero by Batch.AggregatorSwap
	SlippageBps uint32
}

// Quote is an aggregator route. Call turns it into a batch call.
type Quote struct {
	To           common.Address        `json:"to"`
	Data         hexutil.Bytes         `json:"data"`
	Value        *math.HexOrDecimal256 `json:"value"`
	BuyAmount    *big.Int              `json:"-"`
	MinBuyAmount *big.Int              `json:"-"`
}

// Call returns the call that executes the quoted route. Quotes returned by
// AggregatorClient carry an in-range value; any other value is sent as zero.
func (q *Quote) Call() Call {
	var value *uint256.Int
	if q.Value != nil {
		value, _ = ValueFromBig((*big.Int)(q.Value))
	}
	return NewCall(q.To, value, q.Data)
}

type quoteResponse struct {
	Quote
	BuyAmount    *math.HexOrDecimal256 `json:"buyAmount"`
	MinBuyAmount *math.HexOrDecimal256 `json:"minBuyAmount"`
	Error        string                `json:"error"`
	Message      string                `json:"message"`
}

// AggregatorClient fetches quotes over HTTP. Transient failures (connection
// errors, 429 and 5xx responses) are retried with backoff.
type AggregatorClient struct {
	baseURL string
	apiKey  string
	chainID *big.Int
	http    *retryablehttp.Client
}

// AggregatorOption configures an AggregatorClient.
type AggregatorOption func(*AggregatorClient)

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) AggregatorOption {
	return func(c *AggregatorClient) {
		c.apiKey = key
	}
}

// WithAggregatorRetries sets the retry limit. Default is 3.
func WithAggregatorRetries(n int) AggregatorOption {
	return func(c *AggregatorClient) {
		c.http.RetryMax = n
	}
}

// WithAggregatorLogger routes retry logs to logger.
func WithAggregatorLogger(logger log.Logger) AggregatorOption {
	return func(c *AggregatorClient) {
		c.http.Logger = logger
	}
}

// NewAggregatorClient creates a client for the quote API at baseURL.
func NewAggregatorClient(baseURL string, chainID *big.Int, opts ...AggregatorOption) *AggregatorClient {
	hc := retryablehttp.NewClient()
	hc.HTTPClient.Timeout = DefaultTransportTimeout
	hc.RetryMax = 3
	hc.RetryWaitMin = 100 * time.Millisecond
	hc.RetryWaitMax = 2 * time.Second
	hc.Logger = nil

	c := &AggregatorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		chainID: bigOrZero(chainID),
		http:    hc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Quote requests a route. Any failure, including an error reported in a
// successful response body, is an *Error with code EXTERNAL_SERVICE_ERROR.
func (c *AggregatorClient) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	q := url.Values{}
	q.Set("chainId", c.chainID.String())
	q.Set("sellToken", req.SellToken.Hex())
	q.Set("buyToken", req.BuyToken.Hex())
	q.Set("sellAmount", bigOrZero(req.SellAmount).String())
	q.Set("taker", req.Taker.Hex())
	if req.SlippageBps > 0 {
		q.Set("slippageBps", strconv.FormatUint(uint64(req.SlippageBps), 10))
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, externalServiceError("build quote request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, externalServiceError("quote request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, externalServiceError("read quote response", err)
	}

	var out quoteResponse
	decodeErr := json.Unmarshal(body, &out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := out.errorText()
		if decodeErr != nil || reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return nil, externalServiceError("quote request", fmt.Errorf("status %d: %s", resp.StatusCode, reason))
	}
	if decodeErr != nil {
		return nil, externalServiceError("decode quote response", decodeErr)
	}
	if reason := out.errorText(); reason != "" {
		return nil, externalServiceError("quote rejected", fmt.Errorf("%s", reason))
	}
	if out.To == (common.Address{}) || len(out.Data) == 0 {
		return nil, externalServiceError("quote rejected", fmt.Errorf("response has no transaction"))
	}
	if out.Value != nil {
		if _, ok := ValueFromBig((*big.Int)(out.Value)); !ok {
			return nil, externalServiceError("quote rejected", fmt.Errorf("value %s out of range", (*big.Int)(out.Value)))
		}
	}

	quote := out.Quote
	quote.BuyAmount = (*big.Int)(out.BuyAmount)
	quote.MinBuyAmount = (*big.Int)(out.MinBuyAmount)
	return &quote, nil
}

func (r *quoteResponse) errorText() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Message
}

func externalServiceError(stage string, err error) *Error {
	return &Error{Code: CodeExternalService, Message: "aggregator " + stage, Err: err}
}
