// mongo.go -- MongoDB backend for users and chat histories.
//
// Selected when DATABASE_URL uses the mongodb:// or mongodb+srv:// scheme.
// Uniqueness lives in indexes created by EnsureIndexes at startup.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	usersCollection = "users"
	chatsCollection = "chat_histories"

	mongoEmailIndex   = "users_email_unique"
	mongoOAuthIDIndex = "users_oauth_id_unique"
	mongoChatIndex    = "chat_histories_user_mode_unique"
)

// mongoUser is the BSON shape of a users document.
// Nil pointers are omitted so the partial oauth_id index skips local accounts.
type mongoUser struct {
	ID             string     `bson:"_id"`
	Email          string     `bson:"email"`
	Name           string     `bson:"name"`
	AuthProvider   string     `bson:"auth_provider"`
	PasswordHash   *string    `bson:"password_hash,omitempty"`
	OAuthID        *string    `bson:"oauth_id,omitempty"`
	ProfilePicture string     `bson:"profile_picture"`
	PartnerName    string     `bson:"partner_name"`
	WeddingDate    *time.Time `bson:"wedding_date"`
	Budget         float64    `bson:"budget"`
	Location       string     `bson:"location"`
	PhoneNumber    string     `bson:"phone_number"`
	CreatedAt      time.Time  `bson:"created_at"`
	LastLogin      time.Time  `bson:"last_login"`
}

type mongoChat struct {
	UserID      string    `bson:"user_id"`
	Mode        string    `bson:"mode"`
	Messages    []Message `bson:"messages"`
	LastUpdated time.Time `bson:"last_updated"`
}

// MongoStore keeps users and chat histories in two collections of one database.
type MongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
	chats  *mongo.Collection
}

// NewMongoStore connects, pings and returns a ready store.
// timeout becomes the client-side operation timeout for every call.
func NewMongoStore(ctx context.Context, uri, database string, timeout time.Duration) (*MongoStore, error) {
	opts := options.Client().ApplyURI(uri)
	if timeout > 0 {
		opts.SetTimeout(timeout)
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}
	db := client.Database(database)
	return &MongoStore{
		client: client,
		users:  db.Collection(usersCollection),
		chats:  db.Collection(chatsCollection),
	}, nil
}

// EnsureIndexes creates the uniqueness indexes. Safe to call on every start.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(mongoEmailIndex),
		},
		{
			Keys: bson.D{{Key: "oauth_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(mongoOAuthIDIndex).
				SetPartialFilterExpression(bson.M{"oauth_id": bson.M{"$type": "string"}}),
		},
	})
	if err != nil {
		return fmt.Errorf("creating user indexes: %w", err)
	}
	_, err = s.chats.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "mode", Value: 1}},
		Options: options.Index().SetUnique(true).SetName(mongoChatIndex),
	})
	if err != nil {
		return fmt.Errorf("creating chat index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// CheckHealth pings the primary.
func (s *MongoStore) CheckHealth(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// CreateUser inserts u. Returns ErrDuplicateEmail or ErrDuplicateOAuthID on index violations.
func (s *MongoStore) CreateUser(ctx context.Context, u *User) error {
	provider, hash, oauthID := credentialColumns(u.Credentials)
	_, err := s.users.InsertOne(ctx, mongoUser{
		ID:             u.ID.String(),
		Email:          u.Email,
		Name:           u.Name,
		AuthProvider:   provider,
		PasswordHash:   hash,
		OAuthID:        oauthID,
		ProfilePicture: u.Profile.ProfilePicture,
		PartnerName:    u.Profile.PartnerName,
		WeddingDate:    u.Profile.WeddingDate,
		Budget:         u.Profile.Budget,
		Location:       u.Profile.Location,
		PhoneNumber:    u.Profile.PhoneNumber,
		CreatedAt:      u.CreatedAt,
		LastLogin:      u.LastLogin,
	})
	return mapMongoError(err)
}

func (s *MongoStore) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.findUser(ctx, bson.M{"_id": id.String()})
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *MongoStore) GetUserByOAuthID(ctx context.Context, oauthID string) (*User, error) {
	return s.findUser(ctx, bson.M{"oauth_id": oauthID})
}

// TouchLastLogin sets last_login for the user.
func (s *MongoStore) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": id.String()}, bson.M{"$set": bson.M{"last_login": at}})
	if err != nil {
		return mapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkOAuthIdentity attaches oauthID to the user and flips auth_provider to oauth.
// password_hash is left alone. An empty picture keeps the current one.
func (s *MongoStore) LinkOAuthIdentity(ctx context.Context, id uuid.UUID, oauthID, picture string, at time.Time) error {
	set := bson.M{
		"oauth_id":      oauthID,
		"auth_provider": string(ProviderOAuth),
		"last_login":    at,
	}
	if picture != "" {
		set["profile_picture"] = picture
	}
	res, err := s.users.UpdateOne(ctx, bson.M{"_id": id.String()}, bson.M{"$set": set})
	if err != nil {
		return mapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProfile applies the non-nil fields of upd and returns the updated document.
func (s *MongoStore) UpdateProfile(ctx context.Context, id uuid.UUID, upd ProfileUpdate) (*User, error) {
	set := bson.M{}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.PartnerName != nil {
		set["partner_name"] = *upd.PartnerName
	}
	if upd.ClearWeddingDate {
		set["wedding_date"] = nil
	} else if upd.WeddingDate != nil {
		set["wedding_date"] = *upd.WeddingDate
	}
	if upd.Budget != nil {
		set["budget"] = *upd.Budget
	}
	if upd.Location != nil {
		set["location"] = *upd.Location
	}
	if upd.PhoneNumber != nil {
		set["phone_number"] = *upd.PhoneNumber
	}
	if len(set) == 0 {
		return s.GetUserByID(ctx, id)
	}

	var doc mongoUser
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating profile: %w", mapMongoError(err))
	}
	return doc.toUser()
}

// DeleteUser removes the user and every chat history it owns.
func (s *MongoStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res, err := s.users.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return mapMongoError(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	if _, err := s.chats.DeleteMany(ctx, bson.M{"user_id": id.String()}); err != nil {
		return fmt.Errorf("deleting chat histories: %w", mapMongoError(err))
	}
	return nil
}

// GetChatHistory returns the record for (userID, mode) or ErrNotFound.
func (s *MongoStore) GetChatHistory(ctx context.Context, userID uuid.UUID, mode string) (*ChatHistory, error) {
	var doc mongoChat
	err := s.chats.FindOne(ctx, bson.M{"user_id": userID.String(), "mode": mode}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching chat history: %w", mapMongoError(err))
	}
	return &ChatHistory{UserID: userID, Mode: mode, Messages: doc.Messages, LastUpdated: doc.LastUpdated}, nil
}

// SaveChatHistory upserts the (userID, mode) document with a full overwrite of messages.
func (s *MongoStore) SaveChatHistory(ctx context.Context, userID uuid.UUID, mode string, messages []Message, at time.Time) error {
	if messages == nil {
		messages = []Message{}
	}
	_, err := s.chats.UpdateOne(ctx,
		bson.M{"user_id": userID.String(), "mode": mode},
		bson.M{"$set": bson.M{"messages": messages, "last_updated": at}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("saving chat history: %w", mapMongoError(err))
	}
	return nil
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*User, error) {
	var doc mongoUser
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", mapMongoError(err))
	}
	return doc.toUser()
}

func (d mongoUser) toUser() (*User, error) {
	id, err := uuid.FromString(d.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad id %q", ErrCorruptRecord, d.ID)
	}
	creds, err := credentialsFromColumns(d.AuthProvider, d.PasswordHash, d.OAuthID)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", d.ID, err)
	}
	return &User{
		ID:          id,
		Email:       d.Email,
		Name:        d.Name,
		Credentials: creds,
		Profile: Profile{
			ProfilePicture: d.ProfilePicture,
			PartnerName:    d.PartnerName,
			WeddingDate:    d.WeddingDate,
			Budget:         d.Budget,
			Location:       d.Location,
			PhoneNumber:    d.PhoneNumber,
		},
		CreatedAt: d.CreatedAt,
		LastLogin: d.LastLogin,
	}, nil
}

// mapMongoError turns duplicate-key errors on the named user indexes into sentinel errors.
// The server reports the violated index name in the message. Driver timeouts
// (server selection, maxTimeMS, network) are made to wrap context.DeadlineExceeded.
func mapMongoError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsTimeout(err) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, mongoEmailIndex):
		return ErrDuplicateEmail
	case strings.Contains(msg, mongoOAuthIDIndex):
		return ErrDuplicateOAuthID
	}
	return err
}
