package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// recordJSON is the wire shape of one captured record: a kind tag plus the
// kind's payload. Used by the replay tooling, one record per line.
type recordJSON struct {
	ElapsedNs int64           `json:"elapsed_ns"`
	Worker    int             `json:"worker"`
	Kind      string          `json:"kind"`
	Event     json.RawMessage `json:"event"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.Event == nil {
		return nil, fmt.Errorf("record has no event")
	}
	payload, err := json.Marshal(r.Event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", KindOf(r.Event), err)
	}
	return json.Marshal(recordJSON{
		ElapsedNs: r.Elapsed.Nanoseconds(),
		Worker:    int(r.Worker),
		Kind:      KindOf(r.Event),
		Event:     payload,
	})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var ev Event
	var err error
	switch raw.Kind {
	case "dataflow":
		var v Dataflow
		err = json.Unmarshal(raw.Event, &v)
		ev = v
	case "dataflow_dependency":
		var v DataflowDependency
		err = json.Unmarshal(raw.Event, &v)
		ev = v
	case "kafka_broker_rtt":
		var v KafkaBrokerRTT
		err = json.Unmarshal(raw.Event, &v)
		ev = v
	case "kafka_consumer_partition":
		var v KafkaConsumerPartition
		err = json.Unmarshal(raw.Event, &v)
		ev = v
	case "peek":
		var v Peek
		err = json.Unmarshal(raw.Event, &v)
		ev = v
	case "source_info":
		var v SourceInfo
		err = json.Unmarshal(raw.Event, &v)
		ev = v
	case "frontier":
		var v Frontier
		err = json.Unmarshal(raw.Event, &v)
		ev = v
	default:
		return fmt.Errorf("unknown event kind %q", raw.Kind)
	}
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s event: %w", raw.Kind, err)
	}

	r.Elapsed = time.Duration(raw.ElapsedNs)
	r.Worker = WorkerID(raw.Worker)
	r.Event = ev
	return nil
}
