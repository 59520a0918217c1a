package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/robotalks/pinvault/pkg/events"
	"github.com/robotalks/pinvault/pkg/events/mqtt"
	"github.com/robotalks/pinvault/pkg/framework"
)

var (
	mqttURL = "mqtt://localhost:1883/vault/"
)

func init() {
	if val := os.Getenv("VAULT_EVENTS_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}

	q.Sub("+/"+mqtt.TopicMeta, mqtt.Handler(func(topic string, payload []byte) {
		if len(payload) == 0 {
			log.Printf("%s: offline", topic)
			return
		}
		log.Printf("%s: %s", topic, string(payload))
	}))
	q.Sub("+/"+mqtt.TopicEvents, mqtt.Handler(func(topic string, payload []byte) {
		var ev events.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			log.Printf("%s: bad event: %v", topic, err)
			return
		}
		log.Printf("%s: %s", strings.TrimSuffix(topic, "/"+mqtt.TopicEvents), ev)
	}))

	runner := framework.NewRunner().HandleSignals()
	runner.Go(framework.RunFunc(func(ctx context.Context) error {
		q.Connect()
		<-ctx.Done()
		return q.Close()
	}))
	if err := runner.Wait(); err != nil {
		log.Fatalln(err)
	}
}
