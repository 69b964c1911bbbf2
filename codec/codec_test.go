package codec

import (
	"errors"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

type node struct {
	ID    string    `json:"id"`
	State string    `json:"state"`
	Since time.Time `json:"since"`
}

func sample() node {
	return node{ID: "n1", State: "idle", Since: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func TestForName_RoundTrip(t *testing.T) {
	for _, name := range []string{"json", "msgpack", "cbor"} {
		t.Run(name, func(t *testing.T) {
			c, err := ForName[node](name)
			if err != nil {
				t.Fatal(err)
			}
			b, err := c.Encode(sample())
			if err != nil {
				t.Fatal(err)
			}
			got, err := c.Decode(b)
			if err != nil {
				t.Fatal(err)
			}
			if got.ID != "n1" || got.State != "idle" || !got.Since.Equal(sample().Since) {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestForName_Unknown(t *testing.T) {
	if _, err := ForName[node]("yaml"); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}

func TestJSON_StrictRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	c := JSON[node]{Strict: true}
	if _, err := c.Decode([]byte(`{"id":"n1","color":"red"}`)); err == nil {
		t.Fatal("unknown field accepted")
	}
	if _, err := c.Decode([]byte(`{"id":"n1"} {"id":"n2"}`)); err == nil {
		t.Fatal("trailing value accepted")
	}
	if _, err := (JSON[node]{}).Decode([]byte(`{"id":"n1","color":"red"}`)); err != nil {
		t.Fatalf("lenient decode failed: %v", err)
	}
}

func TestMsgpack_UsesJSONFieldNames(t *testing.T) {
	b, err := Msgpack[node]{}.Encode(sample())
	if err != nil {
		t.Fatal(err)
	}
	m, err := Msgpack[map[string]any]{}.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if m["id"] != "n1" || m["state"] != "idle" {
		t.Fatalf("field names not taken from json tags: %v", m)
	}
}

func TestLimit(t *testing.T) {
	c := Limit[string]{Inner: String{}, Max: 4}
	if _, err := c.Decode([]byte("12345")); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("want ErrTooLarge, got %v", err)
	}
	if s, err := c.Decode([]byte("1234")); err != nil || s != "1234" {
		t.Fatalf("got %q, %v", s, err)
	}
	if s, err := (Limit[string]{Inner: String{}}).Decode(make([]byte, 1<<16)); err != nil || len(s) != 1<<16 {
		t.Fatalf("zero Max must not limit: %v", err)
	}
}

func TestProtobuf_RoundTrip(t *testing.T) {
	c := NewProtobuf(func() *structpb.Struct { return new(structpb.Struct) })
	in, err := structpb.NewStruct(map[string]any{"id": "n1", "dedicated": true})
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if out.Fields["id"].GetStringValue() != "n1" || !out.Fields["dedicated"].GetBoolValue() {
		t.Fatalf("got %v", out)
	}
}

func TestCBOR_Deterministic(t *testing.T) {
	c, err := NewCBOR[map[string]int](true)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := c.Encode(map[string]int{"b": 2, "a": 1, "c": 3})
	b, _ := c.Encode(map[string]int{"c": 3, "a": 1, "b": 2})
	if string(a) != string(b) {
		t.Fatal("deterministic encoding differs for equal maps")
	}
}
