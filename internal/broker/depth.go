package broker

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ChannelDepth is one topic/channel backlog reading from nsqd.
type ChannelDepth struct {
	Topic   string
	Channel string
	Depth   int64
}

var statsClient = &http.Client{Timeout: 5 * time.Second}

// QueueDepths reads backlog depths from nsqd's HTTP stats endpoint. Used by
// the worker's backlog monitor to export queue depth gauges.
func QueueDepths(nsqdHTTPAddr string) ([]ChannelDepth, error) {
	resp, err := statsClient.Get(fmt.Sprintf("http://%s/stats?format=json", nsqdHTTPAddr))
	if err != nil {
		return nil, fmt.Errorf("nsqd stats: %w", err)
	}
	defer resp.Body.Close()

	var stats struct {
		Topics []struct {
			Name     string `json:"topic_name"`
			Channels []struct {
				Name  string `json:"channel_name"`
				Depth int64  `json:"depth"`
			} `json:"channels"`
		} `json:"topics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode nsqd stats: %w", err)
	}

	var out []ChannelDepth
	for _, t := range stats.Topics {
		for _, c := range t.Channels {
			out = append(out, ChannelDepth{Topic: t.Name, Channel: c.Name, Depth: c.Depth})
		}
	}
	return out, nil
}
