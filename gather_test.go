package gather

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestIdJson(t *testing.T) {
	id := NewId()

	idJson, err := json.Marshal(id)
	assert.Equal(t, err, nil)

	var parsed Id
	err = json.Unmarshal(idJson, &parsed)
	assert.Equal(t, err, nil)
	assert.Equal(t, parsed, id)

	var badId Id
	err = json.Unmarshal([]byte(`"not-a-uuid"`), &badId)
	assert.NotEqual(t, err, nil)
}

// a null id field must parse as the zero id instead of failing the
// whole row
func TestIdJsonNull(t *testing.T) {
	var row struct {
		Id      Id `json:"id"`
		ActorId Id `json:"actor_id"`
	}
	id := NewId()
	rowJson := []byte(`{"id":"` + id.String() + `","actor_id":null}`)

	err := json.Unmarshal(rowJson, &row)
	assert.Equal(t, err, nil)
	assert.Equal(t, row.Id, id)
	assert.Equal(t, row.ActorId.IsZero(), true)
}
