package capture

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoBackend stores artifacts as documents: one per (host, command, phase)
// key plus one sequence-numbered entry per consolidated append, so capture
// order survives without a consolidated blob.
type MongoBackend struct {
	Client     *mongo.Client
	Collection *mongo.Collection
}

var _ ArtifactBackend = (*MongoBackend)(nil)

func NewMongoBackend(uri, dbName, collName string) (*MongoBackend, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoBackend{
		Client:     client,
		Collection: client.Database(dbName).Collection(collName),
	}, nil
}

func (m *MongoBackend) Close(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}

func (m *MongoBackend) WriteArtifact(ctx context.Context, host, command string, phase Phase, output string) error {
	id := ArtifactName(host, command, phase)
	doc := bson.M{
		"_id":       id,
		"kind":      "artifact",
		"host":      host,
		"phase":     string(phase),
		"command":   command,
		"output":    output,
		"updatedAt": time.Now().UTC(),
	}
	_, err := m.Collection.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("WriteArtifact: MongoDB ReplaceOne failed: %w", err)
	}
	return nil
}

func (m *MongoBackend) AppendConsolidated(ctx context.Context, host string, phase Phase, command, output string) error {
	seq, err := m.Collection.CountDocuments(ctx, bson.M{
		"kind":  "entry",
		"host":  host,
		"phase": string(phase),
	})
	if err != nil {
		return fmt.Errorf("AppendConsolidated: MongoDB CountDocuments failed: %w", err)
	}
	_, err = m.Collection.InsertOne(ctx, bson.M{
		"kind":      "entry",
		"host":      host,
		"phase":     string(phase),
		"seq":       seq,
		"command":   command,
		"output":    output,
		"createdAt": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("AppendConsolidated: MongoDB InsertOne failed: %w", err)
	}
	return nil
}

func (m *MongoBackend) ReadArtifact(ctx context.Context, host, command string, phase Phase) (string, error) {
	id := ArtifactName(host, command, phase)
	res := m.Collection.FindOne(ctx, bson.M{"_id": id})
	if err := res.Err(); err != nil {
		if err == mongo.ErrNoDocuments {
			return "", fmt.Errorf("%s: %w", id, ErrArtifactNotFound)
		}
		return "", fmt.Errorf("%s: %v: %w", id, err, ErrArtifactRead)
	}
	var doc struct {
		Output string `bson:"output"`
	}
	if err := res.Decode(&doc); err != nil {
		return "", fmt.Errorf("%s: decode: %v: %w", id, err, ErrArtifactRead)
	}
	return doc.Output, nil
}

func (m *MongoBackend) ListCommands(ctx context.Context, host string, phase Phase) ([]string, error) {
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: 1}})
	cur, err := m.Collection.Find(ctx, bson.M{
		"kind":  "entry",
		"host":  host,
		"phase": string(phase),
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("ListCommands: MongoDB Find failed: %v: %w", err, ErrArtifactRead)
	}
	defer cur.Close(ctx)

	var commands []string
	seen := make(map[string]bool)
	for cur.Next(ctx) {
		var doc struct {
			Command string `bson:"command"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("ListCommands: decode: %v: %w", err, ErrArtifactRead)
		}
		if doc.Command == "" || seen[doc.Command] {
			continue
		}
		seen[doc.Command] = true
		commands = append(commands, doc.Command)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("ListCommands: cursor: %v: %w", err, ErrArtifactRead)
	}
	return commands, nil
}
