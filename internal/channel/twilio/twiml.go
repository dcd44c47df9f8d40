package twilio

import (
	"bytes"
	"encoding/xml"
	"log/slog"

	"github.com/icupa/outreach/internal/channel"
)

type sayVerb struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr"`
	Text    string   `xml:",chardata"`
}

type gatherVerb struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Timeout       int      `xml:"timeout,attr"`
	SpeechTimeout string   `xml:"speechTimeout,attr"`
	Action        string   `xml:"action,attr"`
	Say           *sayVerb
}

type pauseVerb struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type hangupVerb struct {
	XMLName xml.Name `xml:"Hangup"`
}

type voiceResponse struct {
	XMLName xml.Name `xml:"Response"`
	Say     *sayVerb
	Gather  *gatherVerb
	Pause   *pauseVerb
	Hangup  *hangupVerb
}

// VoiceResponse implements channel.VoiceAdapter. It renders TwiML that
// speaks the given text and then either gathers the caller's speech,
// hangs up, or pauses briefly before hanging up.
func (a *Adapter) VoiceResponse(say string, next channel.VoiceAction) string {
	doc := voiceResponse{}
	if say != "" {
		doc.Say = &sayVerb{Voice: "alice", Text: say}
	}
	switch next {
	case channel.VoiceGather:
		doc.Gather = &gatherVerb{
			Input:         "speech",
			Timeout:       10,
			SpeechTimeout: "auto",
			Action:        a.voiceURL,
			Say:           &sayVerb{Voice: "alice", Text: "Please speak your response after the beep."},
		}
	case channel.VoiceHangup:
		doc.Hangup = &hangupVerb{}
	default:
		doc.Pause = &pauseVerb{Length: 1}
		doc.Hangup = &hangupVerb{}
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		a.logger.Error("encode voice response", slog.Any("error", err))
		return xml.Header + "<Response><Hangup/></Response>"
	}
	return buf.String()
}
