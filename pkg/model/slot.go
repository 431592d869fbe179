package model

import "time"

// Slot is a separately stocked sub-inventory of an event (seat class, tier).
type Slot struct {
	ID        string    `json:"id,omitempty" bson:"_id,omitempty"`
	EventID   string    `json:"event_id" bson:"event_id"`
	Name      string    `json:"name" bson:"name"`
	Quantity  int       `json:"quantity" bson:"quantity"`
	Price     int64     `json:"price" bson:"price"`
	Version   int64     `json:"version" bson:"version"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

type SlotCreate struct {
	Name     string `json:"name" validate:"required,notblank,min=1,max=100"`
	Quantity int    `json:"quantity" validate:"required,min=1,max=1000000"`
	Price    int64  `json:"price" validate:"min=0"`
}
