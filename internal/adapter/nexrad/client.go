package nexrad

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/couchcryptid/nexrad-reflectivity-service/internal/domain"
	"github.com/couchcryptid/nexrad-reflectivity-service/internal/observability"
	"github.com/sony/gobreaker"
)

// DefaultBaseURL is the public NEXRAD Level II archive bucket.
const DefaultBaseURL = "https://unidata-nexrad-level2.s3.amazonaws.com"

// Client implements domain.ArchiveGateway against the S3 Level II archive.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	backoff    BackoffConfig
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an archive client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: newBreaker("nexrad-archive"),
		backoff: DefaultBackoff(),
		metrics: metrics,
		logger:  logger,
	}
}

// ListAvailable lists each of the last hoursBack whole hours and maps every
// hour with data to its first volume key. Hours without volumes are omitted.
func (c *Client) ListAvailable(ctx context.Context, siteID string, hoursBack int) (map[time.Time]string, error) {
	available := make(map[time.Time]string, hoursBack)
	for _, hour := range domain.HourWindow(hoursBack) {
		keys, err := c.listKeys(ctx, hourPrefix(siteID, hour))
		if err != nil {
			return nil, fmt.Errorf("list %s %s: %w", siteID, hour.Format(time.RFC3339), err)
		}
		if key, ok := firstVolume(keys); ok {
			available[hour] = key
		}
	}
	c.logger.Debug("archive listed", "site", siteID, "hours", hoursBack, "available", len(available))
	return available, nil
}

// Parse fetches the volume stored at key and decodes the named fields.
func (c *Client) Parse(ctx context.Context, key string, fields []string) (*domain.Volume, error) {
	data, err := c.get(ctx, "fetch", c.baseURL+"/"+escapeKey(key))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", key, err)
	}
	vol, err := Decode(data, fields)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	c.logger.Debug("volume parsed", "key", key, "bytes", len(data), "sweeps", len(vol.Sweeps))
	return vol, nil
}

// hourPrefix is the bucket prefix of one site-hour, e.g.
// 2024/02/04/KSOX/KSOX20240204_16.
func hourPrefix(siteID string, hour time.Time) string {
	hour = hour.UTC()
	return fmt.Sprintf("%s/%s/%s%s", hour.Format("2006/01/02"), siteID, siteID, hour.Format("20060102_15"))
}

// firstVolume picks the earliest volume key, skipping metadata (_MDM) files.
func firstVolume(keys []string) (string, bool) {
	volumes := slices.DeleteFunc(slices.Clone(keys), func(k string) bool {
		return strings.Contains(k, "_MDM")
	})
	if len(volumes) == 0 {
		return "", false
	}
	slices.Sort(volumes)
	return volumes[0], true
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// listKeys pages through ListObjectsV2 for prefix.
func (c *Client) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	token := ""
	for {
		params := url.Values{
			"list-type": {"2"},
			"prefix":    {prefix},
		}
		if token != "" {
			params.Set("continuation-token", token)
		}

		body, err := c.get(ctx, "list", c.baseURL+"/?"+params.Encode())
		if err != nil {
			return nil, err
		}

		var page listBucketResult
		if err := xml.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode listing: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, obj.Key)
		}
		if !page.IsTruncated || page.NextContinuationToken == "" {
			return keys, nil
		}
		token = page.NextContinuationToken
	}
}

func (c *Client) get(ctx context.Context, op, fullURL string) ([]byte, error) {
	start := time.Now()
	body, err := fetchWithResilience(ctx, c.httpClient, c.breaker, c.backoff, fullURL)
	c.metrics.ArchiveRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Warn("archive request failed", "op", op, "url", fullURL, "error", err)
		return nil, err
	}
	return body, nil
}

// S3 ListObjectsV2 response types.

type listBucketResult struct {
	Contents              []object `xml:"Contents"`
	IsTruncated           bool     `xml:"IsTruncated"`
	NextContinuationToken string   `xml:"NextContinuationToken"`
}

type object struct {
	Key  string `xml:"Key"`
	Size int64  `xml:"Size"`
}
