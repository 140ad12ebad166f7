package outputs

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/joeycumines/logiface"

	"idleq/internal/config"
	"idleq/internal/metric"
)

// ElasticsearchOutput bulk-indexes recorder timings. It is a
// metric.Tracker; Track never blocks the page.
type ElasticsearchOutput struct {
	config      *config.ElasticsearchConfig
	logger      *logiface.Logger[logiface.Event]
	bulkIndexer esutil.BulkIndexer
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	timings     chan metric.Timing
}

// NewElasticsearchOutput connects and starts the indexing worker; nil when
// disabled.
func NewElasticsearchOutput(cfg *config.ElasticsearchConfig, logger *logiface.Logger[logiface.Event]) (*ElasticsearchOutput, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	esCfg := elasticsearch.Config{
		Addresses:     []string{cfg.Endpoint},
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    cfg.MaxRetries,
	}

	if cfg.APIKey != "" {
		esCfg.APIKey = cfg.APIKey
	} else if cfg.Username != "" && cfg.Password != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	if cfg.TLSSkipVerify {
		esCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		}
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned error: %s", res.Status())
	}

	logger.Info().Str("endpoint", cfg.Endpoint).Log("connected to elasticsearch")

	bulkIndexer, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        client,
		NumWorkers:    2,
		FlushBytes:    cfg.BulkSize * 1024,
		FlushInterval: cfg.FlushInterval,
		OnError: func(ctx context.Context, err error) {
			logger.Err().Err(err).Log("elasticsearch bulk indexer error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	return newElasticsearchOutput(cfg, bulkIndexer, logger), nil
}

func newElasticsearchOutput(cfg *config.ElasticsearchConfig, bi esutil.BulkIndexer, logger *logiface.Logger[logiface.Event]) *ElasticsearchOutput {
	ctx, cancel := context.WithCancel(context.Background())
	e := &ElasticsearchOutput{
		config:      cfg,
		logger:      logger,
		bulkIndexer: bi,
		ctx:         ctx,
		cancel:      cancel,
		timings:     make(chan metric.Timing, 100),
	}
	e.wg.Add(1)
	go e.processTimings()
	return e
}

// processTimings indexes until Close, then drains what is buffered.
func (e *ElasticsearchOutput) processTimings() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			for {
				select {
				case t := <-e.timings:
					e.index(t)
				default:
					return
				}
			}
		case t := <-e.timings:
			e.index(t)
		}
	}
}

func (e *ElasticsearchOutput) index(t metric.Timing) {
	if err := e.indexTiming(t); err != nil {
		e.logger.Err().Err(err).Str("metric", t.MetricName).Log("failed to index timing")
	}
}

func (e *ElasticsearchOutput) indexTiming(t metric.Timing) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal timing: %w", err)
	}

	// the worker outlives e.ctx while draining
	return e.bulkIndexer.Add(
		context.Background(),
		esutil.BulkIndexerItem{
			Action:     "index",
			Index:      e.formatIndexName(t.Timestamp),
			DocumentID: t.ID,
			Body:       bytes.NewReader(data),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				if err != nil {
					e.logger.Err().Err(err).Log("elasticsearch indexing error")
				} else {
					e.logger.Err().Str("type", res.Error.Type).Str("reason", res.Error.Reason).Log("elasticsearch indexing failed")
				}
			},
		},
	)
}

// formatIndexName expands %{+yyyy.MM.dd}, %{+yyyy.MM} and %{+yyyy}.
func (e *ElasticsearchOutput) formatIndexName(t time.Time) string {
	t = t.UTC()
	return strings.NewReplacer(
		"%{+yyyy.MM.dd}", t.Format("2006.01.02"),
		"%{+yyyy.MM}", t.Format("2006.01"),
		"%{+yyyy}", t.Format("2006"),
	).Replace(e.config.IndexPattern)
}

// Track queues a timing for indexing, dropping it if the buffer is full.
func (e *ElasticsearchOutput) Track(t metric.Timing) {
	if e == nil {
		return
	}
	select {
	case <-e.ctx.Done():
		return
	default:
	}
	select {
	case e.timings <- t:
	default:
		e.logger.Warning().Str("metric", t.MetricName).Log("elasticsearch timing buffer is full, dropping timing")
	}
}

// Name returns the output module name
func (e *ElasticsearchOutput) Name() string {
	return "elasticsearch"
}

// Close flushes pending documents
func (e *ElasticsearchOutput) Close() error {
	if e == nil {
		return nil
	}

	e.cancel()
	e.wg.Wait()

	if err := e.bulkIndexer.Close(context.Background()); err != nil {
		e.logger.Err().Err(err).Log("error closing elasticsearch bulk indexer")
		return err
	}

	stats := e.bulkIndexer.Stats()
	e.logger.Info().
		Uint64("indexed", stats.NumIndexed).
		Uint64("failed", stats.NumFailed).
		Log("elasticsearch indexer stats")
	return nil
}
