package influxdb

import (
	"context"
	"fmt"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/shimmeringbee/httpkit/state"
	"github.com/shimmeringbee/logwrap"
	"time"
)

const SourceRemoved = "removed"

const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 10
	connectTimeout       = 10 * time.Second
)

var clock = time.Now

type PointWriter interface {
	WritePoint(*write.Point)
}

// Recorder writes a point to InfluxDB for every switch added, toggled or removed, giving a history of
// switch state.
type Recorder struct {
	Writer          PointWriter
	EventSubscriber state.EventSubscriber
	Measurement     string
	Logger          logwrap.Logger

	stop chan bool
}

func NewPoint(measurement string, sw state.Switch, source string, ts time.Time) *write.Point {
	return write.NewPoint(
		measurement,
		map[string]string{
			"id":     sw.Config.Identifier,
			"name":   sw.Config.Name,
			"source": source,
		},
		map[string]any{
			"on": sw.State.On,
		},
		ts,
	)
}

func (r *Recorder) record(e any) {
	var sw state.Switch
	var source string

	switch event := e.(type) {
	case state.SwitchAdded:
		sw, source = event.Switch, event.Source
	case state.SwitchStateChanged:
		sw, source = event.Switch, event.Source
	case state.SwitchRemoved:
		sw, source = event.Switch, SourceRemoved
		sw.State.On = false
	default:
		return
	}

	r.Logger.LogDebug(context.Background(), "Recording switch state.", logwrap.Datum("id", sw.Config.Identifier), logwrap.Datum("source", source))
	r.Writer.WritePoint(NewPoint(r.Measurement, sw, source, clock()))
}

func (r *Recorder) Start() {
	r.stop = make(chan bool, 1)

	ch := make(chan any, 100)
	r.EventSubscriber.Subscribe(ch)

	go r.handleEvents(ch)
}

func (r *Recorder) Stop() {
	if r.stop != nil {
		r.stop <- true
	}
}

func (r *Recorder) handleEvents(ch chan any) {
	defer r.EventSubscriber.Unsubscribe(ch)

	for {
		select {
		case event := <-ch:
			r.record(event)
		case <-r.stop:
			return
		}
	}
}

// Connect creates a client with a non-blocking, batching, write API after checking the server responds.
// Asynchronous write failures are logged.
func Connect(ctx context.Context, url string, token string, org string, bucket string, batchSize uint, flushInterval uint, l logwrap.Logger) (influxdb2.Client, api.WriteAPI, error) {
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}

	if flushInterval == 0 {
		flushInterval = DefaultFlushInterval
	}

	client := influxdb2.NewClientWithOptions(url, token, influxdb2.DefaultOptions().
		SetBatchSize(batchSize).
		SetFlushInterval(flushInterval*1000))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to ping influxdb: %w", err)
	}

	if !healthy {
		client.Close()
		return nil, nil, fmt.Errorf("influxdb server at %s is not healthy", url)
	}

	writeAPI := client.WriteAPI(org, bucket)

	go func() {
		for err := range writeAPI.Errors() {
			l.LogError(context.Background(), "Failed to write points to influxdb.", logwrap.Err(err))
		}
	}()

	return client, writeAPI, nil
}
