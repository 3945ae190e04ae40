package cache

import (
	"encoding/json"
	"time"

	"github.com/alorle/gazibo/internal/channel"
)

// record is the persisted form of one country entry.
type record struct {
	Timestamp int64        `json:"timestamp"`
	Channels  []channelDTO `json:"channels"`
}

type channelDTO struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Country  string `json:"country"`
	TVGID    string `json:"tvgId,omitempty"`
	Logo     string `json:"logo,omitempty"`
	Group    string `json:"group,omitempty"`
}

func encodeRecord(at time.Time, channels []channel.Channel) ([]byte, error) {
	rec := record{
		Timestamp: at.UnixMilli(),
		Channels:  make([]channelDTO, len(channels)),
	}
	for i, ch := range channels {
		a := ch.Attributes()
		rec.Channels[i] = channelDTO{
			URL:      ch.URL(),
			Name:     ch.Name(),
			Category: a.Category,
			Country:  a.Country,
			TVGID:    a.TVGID,
			Logo:     a.Logo,
			Group:    a.Group,
		}
	}
	return json.Marshal(rec)
}

func decodeRecord(data []byte) (time.Time, []channel.Channel, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return time.Time{}, nil, err
	}
	channels := make([]channel.Channel, len(rec.Channels))
	for i, dto := range rec.Channels {
		channels[i] = channel.ReconstructChannel(dto.URL, dto.Name, channel.Attributes{
			Category: dto.Category,
			Country:  dto.Country,
			TVGID:    dto.TVGID,
			Logo:     dto.Logo,
			Group:    dto.Group,
		})
	}
	return time.UnixMilli(rec.Timestamp), channels, nil
}
