package webhook

import (
	"github.com/tdxcore/leadqualifier/pkg/models"
)

// waPayload mirrors the WhatsApp Cloud API's webhook envelope: a batch of
// entries, each with one or more changes, each carrying zero or more
// messages from a single contact.
type waPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
					WAID string `json:"wa_id"`
				} `json:"contacts"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Type      string `json:"type"`
					Text      *struct {
						Body string `json:"body"`
					} `json:"text"`
					Image *waMedia `json:"image"`
					Audio *waMedia `json:"audio"`
					Video *waMedia `json:"video"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type waMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	// Link is populated for outbound test fixtures; the production Cloud
	// API instead returns a media id that must be resolved via a separate
	// GET /{media-id} call, left for the media-download follow-up.
	Link string `json:"link,omitempty"`
}

// parseWAPayload extracts one inboundFragment per message across every
// entry/change/value triple in the payload, attaching the sender's display
// name from the accompanying contacts block when present.
func parseWAPayload(p *waPayload) []inboundFragment {
	var out []inboundFragment
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			names := map[string]string{}
			for _, c := range change.Value.Contacts {
				names[c.WAID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				frag := inboundFragment{
					Platform:   models.PlatformWhatsApp,
					ExternalID: m.From,
					MessageID:  m.ID,
					SenderName: names[m.From],
				}
				switch m.Type {
				case "text":
					frag.MessageType = models.MessageText
					if m.Text != nil {
						frag.Content = m.Text.Body
					}
				case "image":
					frag.MessageType = models.MessageImage
					if m.Image != nil {
						frag.MediaURL = m.Image.Link
					}
				case "audio":
					frag.MessageType = models.MessageAudio
					if m.Audio != nil {
						frag.MediaURL = m.Audio.Link
					}
				case "video":
					frag.MessageType = models.MessageVideo
					if m.Video != nil {
						frag.MediaURL = m.Video.Link
					}
				default:
					continue // unsupported message type, drop the fragment
				}
				out = append(out, frag)
			}
		}
	}
	return out
}
