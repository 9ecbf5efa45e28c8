package record

import "github.com/tidwall/gjson"

// Record is one structured unit of data bound for a downstream topic,
// mirroring the host framework's SourceRecord shape closely enough
// that the engine can hand these to an adapter without restructuring.
type Record struct {
	Topic         string
	Key           string
	Value         []byte
	PartitionKey  string
	SourceOffset  map[string]interface{}
}

// Extract applies recordPointer to body and returns one Record per
// array element found there. A pointer resolving to a single object
// (not an array) yields exactly one record for that object, matching
// how some APIs return a single resource rather than a collection.
func Extract(body []byte, topic, endpointID, recordPointer string, offset map[string]interface{}) []Record {
	res, ok := Resolve(body, recordPointer)
	if !ok {
		return nil
	}

	var elements []gjson.Result
	if res.IsArray() {
		elements = res.Array()
	} else {
		elements = []gjson.Result{res}
	}

	out := make([]Record, 0, len(elements))
	for _, el := range elements {
		out = append(out, Record{
			Topic:        topic,
			Value:        []byte(el.Raw),
			PartitionKey: endpointID,
			SourceOffset: offset,
		})
	}
	return out
}

// ExtractValues resolves pointer against every element of the array at
// recordPointer and returns their string values, used by the chaining
// engine to pull chaining_value_pointer (e.g. "/id") out of each
// record in a parent response.
func ExtractValues(body []byte, recordPointer, valuePointer string) []string {
	res, ok := Resolve(body, recordPointer)
	if !ok {
		return nil
	}
	var elements []gjson.Result
	if res.IsArray() {
		elements = res.Array()
	} else {
		elements = []gjson.Result{res}
	}

	out := make([]string, 0, len(elements))
	for _, el := range elements {
		if v, ok := ResolveString([]byte(el.Raw), valuePointer); ok {
			out = append(out, v)
		}
	}
	return out
}

// PollBatch is the ephemeral result of one poll() call.
type PollBatch struct {
	Records []Record
	Offsets map[string]interface{}
}
