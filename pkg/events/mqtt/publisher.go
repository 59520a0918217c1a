package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/pinvault/pkg/events"
)

// Topic suffixes under <prefix><device>/.
const (
	TopicEvents = "events"
	TopicMeta   = "meta"
)

// Meta describes the device, published retained while it's online.
type Meta struct {
	Description string            `json:"description,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// DefaultPublishTimeout bounds how long Observe waits for the broker.
const DefaultPublishTimeout = 500 * time.Millisecond

// Publisher implements events.Observer over MQTT.
type Publisher struct {
	Queue   *Queue
	Device  string
	Timeout time.Duration

	metaJSON []byte
}

// NewPublisher creates a Publisher. The meta topic is cleared by the
// broker through the will message if the device drops off.
func NewPublisher(brokerURL, device string, meta Meta) (*Publisher, error) {
	metaJSON, err := json.Marshal(&meta)
	if err != nil {
		return nil, err
	}
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+device+"/"+TopicMeta, nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("pinvault:" + device)
	}
	p := &Publisher{
		Queue:    NewQueue(opts, topicPrefix),
		Device:   device,
		Timeout:  DefaultPublishTimeout,
		metaJSON: metaJSON,
	}
	p.Queue.OnConnect = func(q *Queue) {
		q.PubWith(p.topic(TopicMeta), p.metaJSON, 1, true)
	}
	return p, nil
}

// EventTopic returns the topic events of device are published to,
// relative to the prefix.
func EventTopic(device string) string {
	return device + "/" + TopicEvents
}

func (p *Publisher) topic(suffix string) string {
	return p.Device + "/" + suffix
}

// Observe implements events.Observer.
func (p *Publisher) Observe(ctx context.Context, ev events.Event) {
	if ev.Device == "" {
		ev.Device = p.Device
	}
	payload, err := json.Marshal(&ev)
	if err != nil {
		glog.Errorf("encode event %s: %v", ev.Type, err)
		return
	}
	token := p.Queue.Pub(EventTopic(p.Device), payload)
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	if !token.WaitTimeout(timeout) {
		glog.Warningf("publish event %s: timeout", ev.Type)
	} else if err := token.Error(); err != nil {
		glog.Warningf("publish event %s: %v", ev.Type, err)
	}
}

// Run implements Runnable.
func (p *Publisher) Run(ctx context.Context) error {
	p.Queue.Connect()
	<-ctx.Done()
	p.Queue.PubWith(p.topic(TopicMeta), nil, 1, true).WaitTimeout(p.Timeout)
	return p.Queue.Close()
}
