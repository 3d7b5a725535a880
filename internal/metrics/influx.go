// Package metrics provides an optional InfluxDB sink for miner statistics.
// The status loop feeds it hashrate samples; the network callbacks feed it
// block acceptance events.
package metrics

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Client wraps InfluxDB operations for miner time-series metrics. A nil
// *Client is valid and drops every write, so callers never have to branch
// on whether metrics are configured.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	bucket   string
	org      string
}

// Config holds InfluxDB connection configuration
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewClient creates a new InfluxDB client and verifies connectivity
func NewClient(cfg *Config) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check InfluxDB health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("InfluxDB health check failed: %s", msg)
	}

	return &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
		org:      cfg.Org,
	}, nil
}

// Close flushes pending points and closes the connection
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.writeAPI.Flush()
	c.client.Close()
}

// WriteHashrate records a hashrate sample for the given address
func (c *Client) WriteHashrate(address string, hashrate float64, totalHashes int64) {
	if c == nil {
		return
	}

	tags := map[string]string{
		"address": address,
	}

	fields := map[string]interface{}{
		"hashrate":     hashrate,
		"total_hashes": totalHashes,
	}

	point := write.NewPoint("hashrate", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteBlockAccepted records an accepted block submission
func (c *Client) WriteBlockAccepted(address, nonce string, height, value int64) {
	if c == nil {
		return
	}

	tags := map[string]string{
		"address": address,
	}

	fields := map[string]interface{}{
		"height": height,
		"value":  value,
		"nonce":  nonce,
		"count":  1,
	}

	point := write.NewPoint("blocks", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteBlockRejected records a rejected block submission
func (c *Client) WriteBlockRejected(address, nonce, reason string) {
	if c == nil {
		return
	}

	tags := map[string]string{
		"address": address,
		"reason":  reason,
	}

	fields := map[string]interface{}{
		"nonce": nonce,
		"count": 1,
	}

	point := write.NewPoint("rejections", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
