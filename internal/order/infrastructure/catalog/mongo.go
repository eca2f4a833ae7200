package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmehra2102/venue-orders/internal/order/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoOracle reads prices straight from the catalog's products collection.
type MongoOracle struct {
	collection *mongo.Collection
}

func NewMongoOracle(db *mongo.Database, collection string) *MongoOracle {
	return &MongoOracle{collection: db.Collection(collection)}
}

type productDoc struct {
	Price float64 `bson:"price"`
}

func (o *MongoOracle) Price(ctx context.Context, productID string) (decimal.Decimal, error) {
	var doc productDoc
	err := o.collection.FindOne(ctx, productFilter(productID)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return decimal.Zero, domain.ErrProductNotFound
		}
		return decimal.Zero, fmt.Errorf("find product %s: %w", productID, err)
	}
	return decimal.NewFromFloat(doc.Price), nil
}

// productFilter matches ObjectID keys written by the catalog service as well
// as plain string keys.
func productFilter(productID string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(productID); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, productID}}}
	}
	return bson.M{"_id": productID}
}
