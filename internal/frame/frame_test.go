package frame

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumberOrStringAcceptsBothShapes(t *testing.T) {
	var n NumberOrString
	require.NoError(t, json.Unmarshal([]byte(`180.5`), &n))
	assert.Equal(t, NumberOrString(180.5), n)

	require.NoError(t, json.Unmarshal([]byte(`"270"`), &n))
	assert.Equal(t, NumberOrString(270), n)

	require.NoError(t, json.Unmarshal([]byte(`null`), &n))
	assert.Equal(t, NumberOrString(0), n)

	require.NoError(t, json.Unmarshal([]byte(`""`), &n))
	assert.Equal(t, NumberOrString(0), n)
}

func TestNumberOrStringRejectsNonNumericString(t *testing.T) {
	var n NumberOrString
	err := json.Unmarshal([]byte(`"north"`), &n)
	assert.Error(t, err)
}

func TestPersonNameFallsBackToPersonAlias(t *testing.T) {
	tf := TelemetryFrame{Person: "Alice"}
	assert.Equal(t, "Alice", tf.PersonName())

	tf.Firstname = "Bob"
	assert.Equal(t, "Bob", tf.PersonName())
}

func TestRequiredFieldsPresent(t *testing.T) {
	complete := []byte(`{"sessionId":"s1","firstname":"Alice","latitude":51.5,"longitude":-0.1,"distance":10,"currentSpeed":1,"maxSpeed":2,"movingAverageSpeed":1.5,"averageSpeed":1.2}`)
	tf := TelemetryFrame{SessionID: "s1", Firstname: "Alice"}
	assert.True(t, tf.RequiredFieldsPresent(complete))

	tf.SessionID = ""
	assert.False(t, tf.RequiredFieldsPresent(complete))

	tf.SessionID = "s1"
	missingAverageSpeed := []byte(`{"sessionId":"s1","firstname":"Alice","latitude":51.5,"longitude":-0.1,"distance":10,"currentSpeed":1,"maxSpeed":2,"movingAverageSpeed":1.5}`)
	assert.False(t, tf.RequiredFieldsPresent(missingAverageSpeed))

	nullCurrentSpeed := []byte(`{"sessionId":"s1","firstname":"Alice","latitude":51.5,"longitude":-0.1,"distance":10,"currentSpeed":null,"maxSpeed":2,"movingAverageSpeed":1.5,"averageSpeed":1.2}`)
	assert.False(t, tf.RequiredFieldsPresent(nullCurrentSpeed))
}

func TestLooksLikeTelemetry(t *testing.T) {
	valid := []byte(`{"sessionId":"s1","latitude":51.5,"longitude":-0.1,"distance":10}`)
	assert.True(t, LooksLikeTelemetry(valid))

	missingDistance := []byte(`{"sessionId":"s1","latitude":51.5,"longitude":-0.1}`)
	assert.False(t, LooksLikeTelemetry(missingDistance))

	malformed := []byte(`not json`)
	assert.False(t, LooksLikeTelemetry(malformed))
}
