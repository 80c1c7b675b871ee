package amqp

import (
	"encoding/json"
	"time"
)

// RetrainRequest asks the worker to rebuild the categorization model from a
// stored dataset. It carries identifiers only, the worker fetches the full
// dataset from storage.
type RetrainRequest struct {
	DatasetID   string    `json:"dataset_id"`
	DatasetName string    `json:"dataset_name"`
	Labeled     int       `json:"labeled"`
	Trigger     string    `json:"trigger"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewRetrainRequest creates a retrain request for the given dataset
func NewRetrainRequest(datasetID, datasetName string, labeled int, trigger string) *RetrainRequest {
	return &RetrainRequest{
		DatasetID:   datasetID,
		DatasetName: datasetName,
		Labeled:     labeled,
		Trigger:     trigger,
		RequestedAt: time.Now(),
	}
}

// ToJSON converts the request to JSON bytes
func (m *RetrainRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RetrainRequestFromJSON creates a request from JSON bytes
func RetrainRequestFromJSON(data []byte) (*RetrainRequest, error) {
	var msg RetrainRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
