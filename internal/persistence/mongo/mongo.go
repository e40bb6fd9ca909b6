package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/example/calendar-service/internal/persistence"
)

const (
	usersCollection    = "users"
	eventsCollection   = "events"
	logsCollection     = "activity_logs"
	sessionsCollection = "sessions"

	disconnectTimeout = 5 * time.Second
)

// Store is a document-store backend on MongoDB.
type Store struct {
	client     *mongo.Client
	db         *mongo.Database
	users      *mongo.Collection
	events     *mongo.Collection
	logs       *mongo.Collection
	sessions   *mongo.Collection
	ownsClient bool
}

var _ persistence.Store = (*Store)(nil)

// Open connects to uri and binds the named database. Close disconnects.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if strings.TrimSpace(uri) == "" || strings.TrimSpace(database) == "" {
		return nil, fmt.Errorf("mongo: uri and database are required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	store := New(client, database)
	store.ownsClient = true
	return store, nil
}

// New binds an existing client. Close leaves the client connected.
func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:   client,
		db:       db,
		users:    db.Collection(usersCollection),
		events:   db.Collection(eventsCollection),
		logs:     db.Collection(logsCollection),
		sessions: db.Collection(sessionsCollection),
	}
}

// EnsureIndexes creates the unique and query indexes. It is idempotent.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	specs := map[*mongo.Collection][]mongo.IndexModel{
		s.users: {
			{Keys: bson.D{{Key: "google_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		s.events: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "active", Value: 1}, {Key: "start_date", Value: 1}, {Key: "end_date", Value: 1}}},
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "active", Value: 1}, {Key: "repeat_type", Value: 1}}},
		},
		s.logs: {
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "action", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
		s.sessions: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
	}

	for collection, models := range specs {
		if _, err := collection.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: create indexes on %s: %w", collection.Name(), err)
		}
	}
	return nil
}

// Ping checks connectivity to the primary.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client when the store opened it.
func (s *Store) Close() error {
	if !s.ownsClient {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// --- UserRepository implementation ---

type userDocument struct {
	ID        string     `bson:"_id"`
	GoogleID  string     `bson:"google_id"`
	Name      string     `bson:"name"`
	Email     string     `bson:"email"`
	Picture   string     `bson:"picture"`
	Role      string     `bson:"role"`
	Active    bool       `bson:"active"`
	LastLogin *time.Time `bson:"last_login,omitempty"`
	CreatedAt time.Time  `bson:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at"`
}

func toUserDocument(user persistence.User) userDocument {
	role := user.Role
	if role == "" {
		role = "user"
	}
	return userDocument{
		ID:        user.ID,
		GoogleID:  user.GoogleID,
		Name:      user.Name,
		Email:     strings.ToLower(strings.TrimSpace(user.Email)),
		Picture:   user.Picture,
		Role:      role,
		Active:    user.Active,
		LastLogin: user.LastLogin,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func (d userDocument) persistence() persistence.User {
	return persistence.User{
		ID:        d.ID,
		GoogleID:  d.GoogleID,
		Name:      d.Name,
		Email:     d.Email,
		Picture:   d.Picture,
		Role:      d.Role,
		Active:    d.Active,
		LastLogin: d.LastLogin,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// CreateUser stores a new user.
func (s *Store) CreateUser(ctx context.Context, user persistence.User) error {
	if strings.TrimSpace(user.ID) == "" || strings.TrimSpace(user.GoogleID) == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.users.InsertOne(ctx, toUserDocument(user))
	return mapError(err)
}

// UpdateUser updates the mutable fields of a user.
func (s *Store) UpdateUser(ctx context.Context, user persistence.User) error {
	doc := toUserDocument(user)
	set := bson.M{
		"google_id":  doc.GoogleID,
		"name":       doc.Name,
		"email":      doc.Email,
		"picture":    doc.Picture,
		"role":       doc.Role,
		"active":     doc.Active,
		"updated_at": doc.UpdatedAt,
	}
	update := bson.M{"$set": set}
	if doc.LastLogin != nil {
		set["last_login"] = *doc.LastLogin
	} else {
		update["$unset"] = bson.M{"last_login": ""}
	}

	result, err := s.users.UpdateByID(ctx, user.ID, update)
	if err != nil {
		return mapError(err)
	}
	if result.MatchedCount == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (persistence.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

// GetUserByGoogleID retrieves a user by Google account subject.
func (s *Store) GetUserByGoogleID(ctx context.Context, googleID string) (persistence.User, error) {
	return s.findUser(ctx, bson.M{"google_id": googleID})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (persistence.User, error) {
	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return persistence.User{}, mapError(err)
	}
	return doc.persistence(), nil
}

// ListUsers returns all users ordered by creation time, newest first.
func (s *Store) ListUsers(ctx context.Context) ([]persistence.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, mapError(err)
	}

	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapError(err)
	}
	users := make([]persistence.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, doc.persistence())
	}
	return users, nil
}

// --- EventRepository implementation ---

type eventDocument struct {
	ID             string    `bson:"_id"`
	OwnerID        string    `bson:"owner_id"`
	Title          string    `bson:"title"`
	Description    string    `bson:"description"`
	StartDate      string    `bson:"start_date"`
	EndDate        string    `bson:"end_date"`
	StartTime      string    `bson:"start_time"`
	EndTime        string    `bson:"end_time"`
	Duration       int       `bson:"duration"`
	Group          string    `bson:"event_group"`
	RepeatType     string    `bson:"repeat_type"`
	RepeatWeekdays []int     `bson:"repeat_weekdays,omitempty"`
	Active         bool      `bson:"active"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

func toEventDocument(event persistence.Event) eventDocument {
	repeat := event.RepeatType
	if repeat == "" {
		repeat = "none"
	}
	return eventDocument{
		ID:             event.ID,
		OwnerID:        event.OwnerID,
		Title:          event.Title,
		Description:    event.Description,
		StartDate:      event.StartDate,
		EndDate:        event.EndDate,
		StartTime:      event.StartTime,
		EndTime:        event.EndTime,
		Duration:       event.Duration,
		Group:          event.Group,
		RepeatType:     repeat,
		RepeatWeekdays: event.RepeatWeekdays,
		Active:         event.Active,
		CreatedAt:      event.CreatedAt,
		UpdatedAt:      event.UpdatedAt,
	}
}

func (d eventDocument) persistence() persistence.Event {
	return persistence.Event{
		ID:             d.ID,
		OwnerID:        d.OwnerID,
		Title:          d.Title,
		Description:    d.Description,
		StartDate:      d.StartDate,
		EndDate:        d.EndDate,
		StartTime:      d.StartTime,
		EndTime:        d.EndTime,
		Duration:       d.Duration,
		Group:          d.Group,
		RepeatType:     d.RepeatType,
		RepeatWeekdays: d.RepeatWeekdays,
		Active:         d.Active,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// CreateEvent stores a new event. The owner must exist.
func (s *Store) CreateEvent(ctx context.Context, event persistence.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	owners, err := s.users.CountDocuments(ctx, bson.M{"_id": event.OwnerID}, options.Count().SetLimit(1))
	if err != nil {
		return mapError(err)
	}
	if owners == 0 {
		return fmt.Errorf("mongo: owner %s does not exist: %w", event.OwnerID, persistence.ErrConstraintViolation)
	}

	_, err = s.events.InsertOne(ctx, toEventDocument(event))
	return mapError(err)
}

// UpdateEvent replaces the mutable fields of an active event of the same owner.
func (s *Store) UpdateEvent(ctx context.Context, event persistence.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	doc := toEventDocument(event)

	result, err := s.events.UpdateOne(ctx,
		bson.M{"_id": event.ID, "owner_id": event.OwnerID, "active": true},
		bson.M{"$set": bson.M{
			"title":           doc.Title,
			"description":     doc.Description,
			"start_date":      doc.StartDate,
			"end_date":        doc.EndDate,
			"start_time":      doc.StartTime,
			"end_time":        doc.EndTime,
			"duration":        doc.Duration,
			"event_group":     doc.Group,
			"repeat_type":     doc.RepeatType,
			"repeat_weekdays": doc.RepeatWeekdays,
			"updated_at":      doc.UpdatedAt,
		}},
	)
	if err != nil {
		return mapError(err)
	}
	if result.MatchedCount == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetEvent retrieves an active event owned by ownerID.
func (s *Store) GetEvent(ctx context.Context, ownerID, id string) (persistence.Event, error) {
	var doc eventDocument
	err := s.events.FindOne(ctx, bson.M{"_id": id, "owner_id": ownerID, "active": true}).Decode(&doc)
	if err != nil {
		return persistence.Event{}, mapError(err)
	}
	return doc.persistence(), nil
}

// ListEvents returns events matching the filter ordered by start.
func (s *Store) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "start_date", Value: 1},
		{Key: "start_time", Value: 1},
		{Key: "_id", Value: 1},
	})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.events.Find(ctx, eventQuery(filter), opts)
	if err != nil {
		return nil, mapError(err)
	}

	var docs []eventDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapError(err)
	}
	events := make([]persistence.Event, 0, len(docs))
	for _, doc := range docs {
		events = append(events, doc.persistence())
	}
	return events, nil
}

func eventQuery(filter persistence.EventFilter) bson.M {
	query := bson.M{"owner_id": filter.OwnerID, "active": true}

	var clauses []bson.M
	if filter.To != "" {
		clauses = append(clauses, bson.M{"start_date": bson.M{"$lte": filter.To}})
	}
	if filter.From != "" {
		overlaps := bson.M{"end_date": bson.M{"$gte": filter.From}}
		if filter.IncludeRecurring {
			clauses = append(clauses, bson.M{"$or": bson.A{overlaps, bson.M{"repeat_type": bson.M{"$ne": "none"}}}})
		} else {
			clauses = append(clauses, overlaps)
		}
	}
	if filter.Query != "" {
		pattern := literalPattern(filter.Query)
		clauses = append(clauses, bson.M{"$or": bson.A{
			bson.M{"title": pattern},
			bson.M{"description": pattern},
		}})
	}
	if filter.Group != "" {
		clauses = append(clauses, bson.M{"event_group": literalPattern(filter.Group)})
	}

	if len(clauses) > 0 {
		query["$and"] = clauses
	}
	return query
}

// literalPattern matches value as a case-insensitive substring.
func literalPattern(value string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(value), "$options": "i"}
}

// DeactivateEvent soft-deletes an active event owned by ownerID.
func (s *Store) DeactivateEvent(ctx context.Context, ownerID, id string, at time.Time) error {
	result, err := s.events.UpdateOne(ctx,
		bson.M{"_id": id, "owner_id": ownerID, "active": true},
		bson.M{"$set": bson.M{"active": false, "updated_at": at}},
	)
	if err != nil {
		return mapError(err)
	}
	if result.MatchedCount == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// DeactivateOwnerEvents soft-deletes every active event of an owner.
func (s *Store) DeactivateOwnerEvents(ctx context.Context, ownerID string, at time.Time) (int, error) {
	result, err := s.events.UpdateMany(ctx,
		bson.M{"owner_id": ownerID, "active": true},
		bson.M{"$set": bson.M{"active": false, "updated_at": at}},
	)
	if err != nil {
		return 0, mapError(err)
	}
	return int(result.ModifiedCount), nil
}

// --- LogRepository implementation ---

type logDocument struct {
	ID          string         `bson:"_id"`
	UserID      string         `bson:"user_id"`
	Action      string         `bson:"action"`
	Description string         `bson:"description"`
	Metadata    map[string]any `bson:"metadata,omitempty"`
	Timestamp   time.Time      `bson:"timestamp"`
}

// AppendLog stores an audit entry.
func (s *Store) AppendLog(ctx context.Context, entry persistence.LogEntry) error {
	if strings.TrimSpace(entry.ID) == "" || strings.TrimSpace(entry.Action) == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.logs.InsertOne(ctx, logDocument{
		ID:          entry.ID,
		UserID:      entry.UserID,
		Action:      entry.Action,
		Description: entry.Description,
		Metadata:    entry.Metadata,
		Timestamp:   entry.Timestamp,
	})
	return mapError(err)
}

// QueryLogs returns entries matching the filter, newest first.
func (s *Store) QueryLogs(ctx context.Context, filter persistence.LogFilter) ([]persistence.LogEntry, error) {
	query := bson.M{}
	if filter.Action != "" {
		query["action"] = filter.Action
	}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	window := bson.M{}
	if !filter.From.IsZero() {
		window["$gte"] = filter.From
	}
	if !filter.To.IsZero() {
		window["$lt"] = filter.To
	}
	if len(window) > 0 {
		query["timestamp"] = window
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.logs.Find(ctx, query, opts)
	if err != nil {
		return nil, mapError(err)
	}
	var docs []logDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, mapError(err)
	}

	entries := make([]persistence.LogEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, persistence.LogEntry{
			ID:          doc.ID,
			UserID:      doc.UserID,
			Action:      doc.Action,
			Description: doc.Description,
			Metadata:    doc.Metadata,
			Timestamp:   doc.Timestamp,
		})
	}
	return entries, nil
}

// --- SessionRepository implementation ---

type sessionDocument struct {
	ID        string     `bson:"_id"`
	UserID    string     `bson:"user_id"`
	ExpiresAt time.Time  `bson:"expires_at"`
	CreatedAt time.Time  `bson:"created_at"`
	RevokedAt *time.Time `bson:"revoked_at,omitempty"`
}

func (d sessionDocument) persistence() persistence.Session {
	return persistence.Session{
		ID:        d.ID,
		UserID:    d.UserID,
		ExpiresAt: d.ExpiresAt,
		CreatedAt: d.CreatedAt,
		RevokedAt: d.RevokedAt,
	}
}

// CreateSession stores a new session.
func (s *Store) CreateSession(ctx context.Context, session persistence.Session) error {
	if strings.TrimSpace(session.ID) == "" || strings.TrimSpace(session.UserID) == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.sessions.InsertOne(ctx, sessionDocument{
		ID:        session.ID,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
		RevokedAt: session.RevokedAt,
	})
	return mapError(err)
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(ctx context.Context, id string) (persistence.Session, error) {
	var doc sessionDocument
	if err := s.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return persistence.Session{}, mapError(err)
	}
	return doc.persistence(), nil
}

// RevokeSession marks a session as revoked. Revoking twice keeps the first
// revocation time.
func (s *Store) RevokeSession(ctx context.Context, id string, revokedAt time.Time) (persistence.Session, error) {
	_, err := s.sessions.UpdateOne(ctx,
		bson.M{"_id": id, "revoked_at": nil},
		bson.M{"$set": bson.M{"revoked_at": revokedAt}},
	)
	if err != nil {
		return persistence.Session{}, mapError(err)
	}
	return s.GetSession(ctx, id)
}

// DeleteExpiredSessions removes sessions that expired at or before reference.
func (s *Store) DeleteExpiredSessions(ctx context.Context, reference time.Time) (int, error) {
	result, err := s.sessions.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": reference}})
	if err != nil {
		return 0, mapError(err)
	}
	return int(result.DeletedCount), nil
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return persistence.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", persistence.ErrDuplicate, err)
	default:
		return err
	}
}
