package main

import (
	"strings"
	"testing"
	"time"
)

var submitTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.FixedZone("CET", 3600))

func TestReadInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain until EOF",
			input: "Subject: hi\n\nbody line\n",
			want:  "Subject: hi\r\n\r\nbody line\r\n",
		},
		{
			name:  "dot terminates",
			input: "Subject: hi\n\nfirst\n.\nignored\n",
			want:  "Subject: hi\r\n\r\nfirst\r\n",
		},
		{
			name:  "dot with CR terminates",
			input: "Subject: hi\r\n\r\nfirst\r\n.\r\nignored\r\n",
			want:  "Subject: hi\r\n\r\nfirst\r\n",
		},
		{
			name:  "dot inside a line is content",
			input: "Subject: hi\n\na. sentence\n",
			want:  "Subject: hi\r\n\r\na. sentence\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readInput(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("readInput: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("readInput = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrepareRewritesEnvelope(t *testing.T) {
	raw := []byte("From: someone@else\r\nTo: old@dest\r\nDate: Mon, 02 Jan 2006 15:04:05 -0700\r\nSubject: hi\r\n\r\nbody\r\n")

	msg, err := prepare(raw, []string{"alice", "bob@remote.example"}, "carol", "box.example", submitTime)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	if got := msg.Header.Get("From"); got != "carol@box.example" {
		t.Errorf("From = %q, want carol@box.example", got)
	}
	if got := msg.Header.Get("To"); got != "alice@box.example, bob@remote.example" {
		t.Errorf("To = %q", got)
	}
	if got := msg.Header.Get("Date"); got != submitTime.Format(time.RFC1123Z) {
		t.Errorf("Date = %q, want %q", got, submitTime.Format(time.RFC1123Z))
	}
	if got := msg.Header.Get("Subject"); got != "hi" {
		t.Errorf("Subject = %q, want hi (untouched)", got)
	}
	if got := string(msg.Body); got != "body\r\n" {
		t.Errorf("Body = %q, want preserved", got)
	}
}

func TestPrepareKeepsExistingTo(t *testing.T) {
	raw := []byte("To: dave@dest.example\r\nSubject: hi\r\n\r\nbody\r\n")

	msg, err := prepare(raw, nil, "carol", "box.example", submitTime)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if got := msg.Header.Get("To"); got != "dave@dest.example" {
		t.Errorf("To = %q, want dave@dest.example", got)
	}
}

func TestPrepareRequiresRecipients(t *testing.T) {
	raw := []byte("Subject: hi\r\n\r\nbody\r\n")

	if _, err := prepare(raw, nil, "carol", "box.example", submitTime); err == nil {
		t.Error("prepare with no recipients and no To succeeded, want error")
	}
}

func TestPrepareAddsMissingHeaders(t *testing.T) {
	// A bare body with no headers at all is still submittable once
	// recipients are given: From, To and Date are all synthesized.
	raw := []byte("\r\njust a body\r\n")

	msg, err := prepare(raw, []string{"eve"}, "carol", "box.example", submitTime)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := msg.CheckRequired(); err != nil {
		t.Errorf("CheckRequired after prepare: %v", err)
	}
}
