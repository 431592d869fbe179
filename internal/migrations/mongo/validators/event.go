package validators

import "go.mongodb.org/mongo-driver/bson"

var integer = []string{"int", "long"}

var EventValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"creator_id",
			"title",
			"status",
			"open_at",
			"close_at",
			"max_participants",
			"settings",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "objectId",
			},

			"creator_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},

			"title": bson.M{
				"bsonType":  "string",
				"minLength": 1,
				"maxLength": 200,
			},

			"description": bson.M{
				"bsonType":  "string",
				"maxLength": 5000,
			},

			"status": bson.M{
				"bsonType": "string",
				"enum": []string{
					"DRAFT",
					"SCHEDULED",
					"OPEN",
					"CLOSED",
					"CANCELLED",
				},
			},

			"open_at": bson.M{
				"bsonType": "date",
			},

			"close_at": bson.M{
				"bsonType": "date",
			},

			"max_participants": bson.M{
				"bsonType": integer,
				"minimum":  1,
			},

			"settings": bson.M{
				"bsonType": "object",
				"required": []string{"use_queue"},
				"properties": bson.M{
					"use_queue": bson.M{
						"bsonType": "bool",
					},
					"queue_batch_size": bson.M{
						"bsonType": integer,
						"minimum":  0,
					},
					"reservation_time_limit": bson.M{
						"bsonType": integer,
						"minimum":  0,
					},
					"max_reservations_per_user": bson.M{
						"bsonType": integer,
						"minimum":  0,
					},
					"require_payment": bson.M{
						"bsonType": "bool",
					},
				},
			},

			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
