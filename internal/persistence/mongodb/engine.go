package mongodb

import (
	"context"
	"errors"

	"github.com/goevery/callwatch/internal/persistence"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type User struct {
	Id       string `bson:"_id"`
	Role     string `bson:"role"`
	IsActive bool   `bson:"isActive"`
}

type AgentAssignment struct {
	UserId  string `bson:"userId"`
	AgentId string `bson:"agentId"`
}

type PersistenceEngine struct {
	users       *mongo.Collection
	assignments *mongo.Collection
}

func NewPersistenceEngine(client *mongo.Client, databaseName string) *PersistenceEngine {
	database := client.Database(databaseName)

	return &PersistenceEngine{
		database.Collection("users"),
		database.Collection("agent_assignments"),
	}
}

// Setup creates the agentId-first index that serves as the agent -> users
// reverse lookup for call and agent updates.
func (e *PersistenceEngine) Setup(ctx context.Context) error {
	assignmentIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "agentId", Value: 1},
			{Key: "userId", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}

	_, err := e.assignments.Indexes().CreateOne(ctx, assignmentIndexModel)

	return err
}

func (e *PersistenceEngine) FindUser(ctx context.Context, userId string) (persistence.User, error) {
	var user User

	err := e.users.FindOne(ctx, bson.M{"_id": userId}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return persistence.User{}, persistence.ErrUserNotFound
	}
	if err != nil {
		return persistence.User{}, err
	}

	return persistence.User{
		Id:       user.Id,
		Role:     user.Role,
		IsActive: user.IsActive,
	}, nil
}

func (e *PersistenceEngine) UsersWithAccessToAgent(ctx context.Context, agentId string) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.D{{Key: "userId", Value: 1}, {Key: "_id", Value: 0}}).
		SetSort(bson.D{{Key: "userId", Value: 1}})

	cursor, err := e.assignments.Find(ctx, bson.M{"agentId": agentId}, opts)
	if err != nil {
		return nil, err
	}

	var assignments []AgentAssignment
	err = cursor.All(ctx, &assignments)
	if err != nil {
		return nil, err
	}

	userIds := make([]string, len(assignments))
	for i, assignment := range assignments {
		userIds[i] = assignment.UserId
	}

	return userIds, nil
}
