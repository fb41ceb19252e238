package completion

import (
	"context"
	"reflect"
	"testing"
)

func TestExtractLikesTrailingLine(t *testing.T) {
	content, likes := ExtractLikes("Good point about rates.\n{\"likes\":[\"p-econ\",\"p-ml\"]}")
	if content != "Good point about rates." {
		t.Fatalf("content = %q", content)
	}
	if !reflect.DeepEqual(likes, []string{"p-econ", "p-ml"}) {
		t.Fatalf("likes = %v", likes)
	}
}

func TestExtractLikesWholeTextIsPayload(t *testing.T) {
	content, likes := ExtractLikes(`{"likes":["p-des"]}`)
	if content != "" {
		t.Fatalf("content = %q", content)
	}
	if !reflect.DeepEqual(likes, []string{"p-des"}) {
		t.Fatalf("likes = %v", likes)
	}
}

func TestExtractLikesAbsentOrMalformed(t *testing.T) {
	for _, text := range []string{
		"No likes here.",
		"Text\n{\"likes\": not json}",
		"Text\n{\"other\":[\"x\"]}",
		"",
	} {
		content, likes := ExtractLikes(text)
		if content != text {
			t.Fatalf("content altered for %q: %q", text, content)
		}
		if likes != nil {
			t.Fatalf("unexpected likes for %q: %v", text, likes)
		}
	}
}

func TestParseAction(t *testing.T) {
	action, reason, ok := ParseAction(`Sure! {"action":"reply_existing","reason":"hot thread"} hope that helps`)
	if !ok || action != "reply_existing" || reason != "hot thread" {
		t.Fatalf("got %q %q %v", action, reason, ok)
	}
	if _, _, ok := ParseAction(`{"action":"dance"}`); ok {
		t.Fatal("unknown action must not parse")
	}
	if _, _, ok := ParseAction("no json"); ok {
		t.Fatal("missing object must not parse")
	}
}

func TestParseTopicChoice(t *testing.T) {
	id, ok := ParseTopicChoice(`{"topic_id":"topic-42"}`)
	if !ok || id != "topic-42" {
		t.Fatalf("got %q %v", id, ok)
	}
	if _, ok := ParseTopicChoice(`{"topic_id":""}`); ok {
		t.Fatal("empty id must not parse")
	}
}

func TestParseTopic(t *testing.T) {
	title, desc, tags, ok := ParseTopic(`{"title":"T","description":"D","tags":["a","b"]}`)
	if !ok || title != "T" || desc != "D" || !reflect.DeepEqual(tags, []string{"a", "b"}) {
		t.Fatalf("got %q %q %v %v", title, desc, tags, ok)
	}
	if _, _, _, ok := ParseTopic(`{"title":"  "}`); ok {
		t.Fatal("blank title must not parse")
	}
}

func TestFirstJSONObjectBalancesBraces(t *testing.T) {
	obj, ok := firstJSONObject(`prefix {"a":{"b":1}} suffix`)
	if !ok || obj != `{"a":{"b":1}}` {
		t.Fatalf("got %q %v", obj, ok)
	}
	if _, ok := firstJSONObject("{unclosed"); ok {
		t.Fatal("unbalanced braces must not parse")
	}
}

func TestScriptedStreamChunksAndDrain(t *testing.T) {
	s := &Scripted{Replies: []string{"a reply long enough to chunk"}}
	ts, err := s.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	out, err := Drain(ts)
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if out != "a reply long enough to chunk" {
		t.Fatalf("Drain = %q", out)
	}
}
