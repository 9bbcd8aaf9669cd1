// mongodb.go - MongoDB persistence for finalized receipts and learning examples

package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bosocmputer/receipt_scan_gemini/configs"
	"github.com/bosocmputer/receipt_scan_gemini/internal/common"
	"github.com/bosocmputer/receipt_scan_gemini/internal/pipeline"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var mongoClient *mongo.Client
var mongoDB *mongo.Database

// InitMongoDB initializes MongoDB connection
func InitMongoDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(configs.MONGO_URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	mongoClient = client
	mongoDB = client.Database(configs.MONGO_DB_NAME)

	log.Println("✅ Connected to MongoDB successfully!")
	return nil
}

// GetMongoDB returns the MongoDB database instance
func GetMongoDB() *mongo.Database {
	return mongoDB
}

// CloseMongoDB closes MongoDB connection
func CloseMongoDB() {
	if mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
		log.Println("MongoDB connection closed")
	}
}

// StoredReceipt is a finalized, reconstructed receipt. Items are immutable
// once written - corrections happen through new learning examples, not by
// editing the stored scan.
type StoredReceipt struct {
	ReceiptID       string                     `bson:"receipt_id" json:"receipt_id"`
	ShopID          string                     `bson:"shopid" json:"shopid"`
	RequestID       string                     `bson:"request_id" json:"request_id"`
	Items           []*pipeline.ReceiptItem    `bson:"items" json:"items"`
	Analytics       *pipeline.ReceiptAnalytics `bson:"analytics" json:"analytics"`
	QualityWarnings []string                   `bson:"quality_warnings" json:"quality_warnings"`
	CreatedAt       time.Time                  `bson:"created_at" json:"created_at"`
}

// SaveReceipt persists a finalized receipt
func SaveReceipt(receipt StoredReceipt) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	collection := mongoDB.Collection("receipts")
	_, err := collection.InsertOne(ctx, receipt)
	if err != nil {
		return fmt.Errorf("failed to save receipt: %w", err)
	}

	log.Printf("✓ Receipt saved: %s (%d items)", receipt.ReceiptID, len(receipt.Items))
	return nil
}

// GetReceipt retrieves a stored receipt by ID, scoped to a shop
func GetReceipt(shopID, receiptID string) (*StoredReceipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	collection := mongoDB.Collection("receipts")
	filter := bson.M{"receipt_id": receiptID, "shopid": shopID}

	var receipt StoredReceipt
	err := collection.FindOne(ctx, filter).Decode(&receipt)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("receipt not found: %s", receiptID)
		}
		return nil, fmt.Errorf("failed to query receipt: %w", err)
	}

	return &receipt, nil
}

// ListReceipts returns the most recent receipts for a shop
func ListReceipts(shopID string, limit int64) ([]StoredReceipt, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	collection := mongoDB.Collection("receipts")
	findOptions := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetLimit(limit)

	cursor, err := collection.Find(ctx, bson.M{"shopid": shopID}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer cursor.Close(ctx)

	var receipts []StoredReceipt
	if err = cursor.All(ctx, &receipts); err != nil {
		return nil, err
	}

	return receipts, nil
}

// GetLearningExamples retrieves per-shop corrected extractions used to bias
// the prompt. Empty result is fine - new shops have no corrections yet.
func GetLearningExamples(shopID string) ([]common.LearningExample, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	collection := mongoDB.Collection("receipt_learning_examples")
	cursor, err := collection.Find(ctx, bson.M{"shopid": shopID})
	if err != nil {
		return []common.LearningExample{}, nil
	}
	defer cursor.Close(ctx)

	var docs []struct {
		common.LearningExample `bson:",inline"`
	}
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	examples := make([]common.LearningExample, 0, len(docs))
	for _, doc := range docs {
		examples = append(examples, doc.LearningExample)
	}
	return examples, nil
}

// SaveLearningExample stores a corrected extraction for future prompts
func SaveLearningExample(shopID string, example common.LearningExample) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	collection := mongoDB.Collection("receipt_learning_examples")
	doc := bson.M{
		"shopid":        shopID,
		"source_text":   example.SourceText,
		"correct_name":  example.CorrectName,
		"correct_price": example.CorrectPrice,
		"created_at":    time.Now(),
	}

	if _, err := collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to save learning example: %w", err)
	}
	return nil
}
