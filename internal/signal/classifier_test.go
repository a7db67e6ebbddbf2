package signal

import "testing"

func validPayload() map[string]string {
	return map[string]string{
		"agora_token":     "t1",
		"agora_uid":       "5",
		"agora_channelid": "c1",
		"call_name":       "Alice",
		"timestamp":       "1700000000000",
	}
}

func TestClassify_ValidInvite(t *testing.T) {
	inv, ok := Classify(validPayload(), false)
	if !ok {
		t.Fatalf("expected invite")
	}
	if inv.Token != "t1" || inv.ParticipantID != 5 || inv.ChannelID != "c1" {
		t.Fatalf("unexpected invite: %+v", inv)
	}
	if inv.CallerName != "Alice" || inv.TimestampMillis != 1700000000000 {
		t.Fatalf("unexpected invite: %+v", inv)
	}
	if inv.CallerPhoto != "" {
		t.Fatalf("expected empty photo, got %q", inv.CallerPhoto)
	}
}

func TestClassify_PhotoIsOptional(t *testing.T) {
	p := validPayload()
	p["caller_photo"] = "https://cdn.example.com/alice.jpg"
	inv, ok := Classify(p, false)
	if !ok {
		t.Fatalf("expected invite")
	}
	if inv.CallerPhoto != "https://cdn.example.com/alice.jpg" {
		t.Fatalf("expected photo, got %q", inv.CallerPhoto)
	}
}

func TestClassify_RejectsDisplayNotifications(t *testing.T) {
	// A display notification never classifies as an invite, even with a full
	// set of call data fields present.
	if _, ok := Classify(validPayload(), true); ok {
		t.Fatalf("expected rejection when notification fields present")
	}

	p := validPayload()
	p["title"] = "New message"
	if _, ok := Classify(p, false); ok {
		t.Fatalf("expected rejection for payload-level title")
	}

	p = validPayload()
	p["body"] = "hello"
	if _, ok := Classify(p, false); ok {
		t.Fatalf("expected rejection for payload-level body")
	}
}

func TestClassify_RejectsMissingFields(t *testing.T) {
	required := []string{"agora_token", "agora_uid", "agora_channelid", "call_name", "timestamp"}
	for _, key := range required {
		p := validPayload()
		delete(p, key)
		if _, ok := Classify(p, false); ok {
			t.Fatalf("expected rejection when %q missing", key)
		}
	}
}

func TestClassify_RejectsNonNumericFields(t *testing.T) {
	p := validPayload()
	p["agora_uid"] = "abc"
	if _, ok := Classify(p, false); ok {
		t.Fatalf("expected rejection for non-numeric uid")
	}

	p = validPayload()
	p["timestamp"] = "yesterday"
	if _, ok := Classify(p, false); ok {
		t.Fatalf("expected rejection for non-numeric timestamp")
	}
}

func TestIsGeneralNotification_MutuallyExclusiveWithInvite(t *testing.T) {
	p := validPayload()
	if IsGeneralNotification(p, false) {
		t.Fatalf("data-only invite payload must not be a general notification")
	}
	if !IsGeneralNotification(p, true) {
		t.Fatalf("notification fields must classify as general notification")
	}
	if _, ok := Classify(p, true); ok {
		t.Fatalf("a general notification must never classify as an invite")
	}
}
