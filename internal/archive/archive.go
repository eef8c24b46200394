package archive

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stocktrack/internal/domain"
)

// Archive keeps read-only copies of generated statements.
type Archive interface {
	SaveStatement(ctx context.Context, statement domain.Statement) error
}

type NoopArchive struct{}

func (NoopArchive) SaveStatement(_ context.Context, _ domain.Statement) error {
	return nil
}

// MongoArchive stores one document per (kind, from, to); re-archiving the
// same period replaces the previous copy.
type MongoArchive struct {
	client   *mongo.Client
	dbName   string
	collName string
}

func NewMongoArchive(ctx context.Context, uri string, dbName string) (*MongoArchive, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &MongoArchive{
		client:   client,
		dbName:   dbName,
		collName: "statements",
	}, nil
}

func (a *MongoArchive) SaveStatement(ctx context.Context, statement domain.Statement) error {
	doc := toDocument(statement, time.Now().UTC())
	filter := bson.M{"kind": doc.Kind, "from": doc.From, "to": doc.To}

	_, err := a.collection().ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to archive %s statement: %w", statement.Kind, err)
	}
	return nil
}

// FindStatement returns the archived statement for a period.
func (a *MongoArchive) FindStatement(ctx context.Context, kind string, from string, to string) (*StatementDocument, error) {
	var doc StatementDocument
	err := a.collection().FindOne(ctx, bson.M{"kind": kind, "from": from, "to": to}).Decode(&doc)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (a *MongoArchive) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}

func (a *MongoArchive) collection() *mongo.Collection {
	return a.client.Database(a.dbName).Collection(a.collName)
}

// StatementDocument is the stored form. Money is kept as decimal strings.
type StatementDocument struct {
	Kind          string        `bson:"kind"`
	From          string        `bson:"from"`
	To            string        `bson:"to"`
	TotalAmount   string        `bson:"total_amount"`
	TotalProfit   string        `bson:"total_profit"`
	TotalQuantity int64         `bson:"total_quantity"`
	ItemCount     int           `bson:"item_count"`
	Rows          []RowDocument `bson:"rows"`
	ArchivedAt    time.Time     `bson:"archived_at"`
}

type RowDocument struct {
	Date      time.Time `bson:"date"`
	Reference string    `bson:"reference"`
	Party     string    `bson:"party"`
	Name      string    `bson:"name"`
	Quantity  int64     `bson:"quantity"`
	UnitPrice string    `bson:"unit_price"`
	Amount    string    `bson:"amount"`
	Profit    string    `bson:"profit"`
}

func toDocument(statement domain.Statement, at time.Time) StatementDocument {
	rows := make([]RowDocument, 0, len(statement.Rows))
	for _, row := range statement.Rows {
		rows = append(rows, RowDocument{
			Date:      row.Date.UTC(),
			Reference: row.Reference,
			Party:     row.Party,
			Name:      row.Name,
			Quantity:  row.Quantity,
			UnitPrice: row.UnitPrice.String(),
			Amount:    row.Amount.String(),
			Profit:    row.Profit.String(),
		})
	}
	return StatementDocument{
		Kind:          statement.Kind,
		From:          statement.From,
		To:            statement.To,
		TotalAmount:   statement.Summary.TotalAmount.String(),
		TotalProfit:   statement.Summary.TotalProfit.String(),
		TotalQuantity: statement.Summary.TotalQuantity,
		ItemCount:     statement.Summary.ItemCount,
		Rows:          rows,
		ArchivedAt:    at,
	}
}
