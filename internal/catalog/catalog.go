// Package catalog copies the loaded product catalog into MongoDB, where each
// product document carries an embedded reviews array.
package catalog

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/JonMunkholm/fleximart-etl/internal/config"
	"github.com/JonMunkholm/fleximart-etl/internal/core"
	"github.com/JonMunkholm/fleximart-etl/internal/logging"
)

// CollectionName is the MongoDB collection holding product documents.
const CollectionName = "products"

// Review is one customer review embedded in a product document.
type Review struct {
	UserID    string    `bson:"user_id" json:"user_id"`
	Rating    int       `bson:"rating" json:"rating"`
	Comment   string    `bson:"comment" json:"comment"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// ProductDocument is the document-store shape of a loaded product.
type ProductDocument struct {
	SKU           string               `bson:"_id" json:"sku"`
	ProductID     int64                `bson:"product_id" json:"product_id"`
	Name          string               `bson:"name" json:"name"`
	Category      string               `bson:"category" json:"category"`
	Price         primitive.Decimal128 `bson:"price" json:"price"`
	StockQuantity int32                `bson:"stock_quantity" json:"stock_quantity"`
	Reviews       []Review             `bson:"reviews" json:"reviews"`
}

// Documents converts loaded products into catalog documents, in input order.
// Products without a surrogate key were never loaded and are skipped.
func Documents(products []*core.Product) ([]ProductDocument, error) {
	docs := make([]ProductDocument, 0, len(products))
	for _, p := range products {
		if !p.SurrogateKey.Valid {
			continue
		}
		price, err := primitive.ParseDecimal128(core.FormatNumeric(p.Price))
		if err != nil {
			return nil, fmt.Errorf("product %s: price: %w", p.SKU, err)
		}
		docs = append(docs, ProductDocument{
			SKU:           p.SKU,
			ProductID:     p.SurrogateKey.Int64,
			Name:          p.Name.String,
			Category:      p.Category.String,
			Price:         price,
			StockQuantity: p.StockQuantity.Int32,
			Reviews:       []Review{},
		})
	}
	return docs, nil
}

// bulkWriter is the part of *mongo.Collection the exporter needs.
type bulkWriter interface {
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
}

// Exporter upserts product documents keyed by SKU.
type Exporter struct {
	coll bulkWriter
}

// NewExporter returns an exporter writing to the products collection of db.
func NewExporter(db *mongo.Database) *Exporter {
	return &Exporter{coll: db.Collection(CollectionName)}
}

// ExportResult summarizes one export.
type ExportResult struct {
	Upserted int64
	Modified int64
	Matched  int64
}

// Export writes the products in one unordered bulk write. Catalog
// attributes are overwritten on every export; reviews are only initialized
// when a document is first created.
func (e *Exporter) Export(ctx context.Context, products []*core.Product) (ExportResult, error) {
	docs, err := Documents(products)
	if err != nil {
		return ExportResult{}, err
	}
	if len(docs) == 0 {
		return ExportResult{}, nil
	}

	models := make([]mongo.WriteModel, 0, len(docs))
	for _, d := range docs {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": d.SKU}).
			SetUpdate(upsertDoc(d)).
			SetUpsert(true))
	}

	res, err := e.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return ExportResult{}, fmt.Errorf("export catalog: %w", err)
	}

	out := ExportResult{
		Upserted: res.UpsertedCount,
		Modified: res.ModifiedCount,
		Matched:  res.MatchedCount,
	}
	logging.FromContext(ctx).Info("catalog exported",
		"documents", len(docs),
		"upserted", out.Upserted,
		"modified", out.Modified,
	)
	return out, nil
}

func upsertDoc(d ProductDocument) bson.M {
	return bson.M{
		"$set": bson.M{
			"product_id":     d.ProductID,
			"name":           d.Name,
			"category":       d.Category,
			"price":          d.Price,
			"stock_quantity": d.StockQuantity,
			"updated_at":     time.Now().UTC(),
		},
		"$setOnInsert": bson.M{
			"reviews": d.Reviews,
		},
	}
}

// Connect opens and pings a MongoDB client.
func Connect(ctx context.Context, cfg config.CatalogConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURL))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	return client, nil
}
