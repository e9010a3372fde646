package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/crictactoe/internal/apperror"
	"github.com/rocketscienceinc/crictactoe/internal/entity"
)

const (
	opCreate    = "create room"
	opJoin      = "join room"
	opUpdate    = "update room"
	opRead      = "read room"
	opSubscribe = "subscribe to room"
)

// Hash fields of a room document. Values are JSON except version, which is a plain integer.
const (
	fieldBoard             = "board"
	fieldCurrentPlayer     = "currentPlayer"
	fieldSelectedTeams     = "selectedTeams"
	fieldSelectedCountries = "selectedCountries"
	fieldTeamOrder         = "teamOrder"
	fieldCountryOrder      = "countryOrder"
	fieldScores            = "scores"
	fieldGameOver          = "gameOver"
	fieldWinner            = "winner"
	fieldGameMode          = "gameMode"
	fieldPlayerX           = "players.X"
	fieldPlayerO           = "players.O"
	fieldStatus            = "status"
	fieldLeftBy            = "leftBy"
	fieldVersion           = "version"
	fieldCreatedAt         = "createdAt"
	fieldUpdatedAt         = "updatedAt"
)

const changeNotice = "changed"

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// RoomOptions - lifetime and retry behaviour of room documents.
type RoomOptions struct {
	TTL   time.Duration
	Retry RetryPolicy
}

// RoomRepository - room documents stored as Redis hashes, with change notices over pub/sub.
type RoomRepository struct {
	logger *slog.Logger
	client *redis.Client
	ttl    time.Duration
	retry  RetryPolicy
}

func NewRoomRepository(logger *slog.Logger, client *redis.Client, opts RoomOptions) *RoomRepository {
	return &RoomRepository{
		logger: logger.With("component", "room_repository"),
		client: client,
		ttl:    opts.TTL,
		retry:  opts.Retry,
	}
}

func roomKey(id string) string {
	return "room:" + id
}

func changesChannel(id string) string {
	return "room:" + id + ":changes"
}

func validateRoomID(op, roomID string) (string, error) {
	id := strings.TrimSpace(roomID)
	if !roomIDPattern.MatchString(id) {
		return "", apperror.New(apperror.KindInvalidInput, op, fmt.Sprintf("malformed room id %q", roomID))
	}

	return id, nil
}

// CreateRoom - stores room as a new waiting document and returns its id.
// The creator must already be seated as X.
func (that *RoomRepository) CreateRoom(ctx context.Context, room *entity.RoomState) (string, error) {
	if room.Players.X == "" {
		return "", apperror.New(apperror.KindInvalidInput, opCreate, "creator must hold X")
	}

	if room.Board == nil {
		return "", apperror.New(apperror.KindInvalidInput, opCreate, "room has no board")
	}

	fields, err := gameFields(&room.GameState)
	if err != nil {
		return "", apperror.Wrap(apperror.KindInvalidInput, opCreate, err)
	}

	if err = putJSON(fields, map[string]any{
		fieldPlayerX: room.Players.X,
		fieldPlayerO: room.Players.O,
		fieldStatus:  entity.StatusWaiting,
		fieldLeftBy:  entity.MarkNone,
	}); err != nil {
		return "", apperror.Wrap(apperror.KindInvalidInput, opCreate, err)
	}

	id := uuid.NewString()
	key := roomKey(id)

	err = that.retry.do(ctx, that.logger, opCreate, func() error {
		now, err := that.client.Time(ctx).Result()
		if err != nil {
			return err
		}

		stamp, err := json.Marshal(now.UTC())
		if err != nil {
			return err
		}
		fields[fieldCreatedAt] = string(stamp)
		fields[fieldUpdatedAt] = string(stamp)
		fields[fieldVersion] = 1

		_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			that.touch(ctx, pipe, id)
			return nil
		})
		return err
	})
	if err != nil {
		return "", err
	}

	that.logger.Debug("room created", "room_id", id, "creator", room.Players.X)

	return id, nil
}

// GetRoom - the current document of roomID.
func (that *RoomRepository) GetRoom(ctx context.Context, roomID string) (*entity.RoomState, error) {
	id, err := validateRoomID(opRead, roomID)
	if err != nil {
		return nil, err
	}

	var room *entity.RoomState
	err = that.retry.do(ctx, that.logger, opRead, func() error {
		hash, err := that.client.HGetAll(ctx, roomKey(id)).Result()
		if err != nil {
			return err
		}

		room, err = decodeRoom(id, hash)
		return err
	})
	if err != nil {
		return nil, err
	}

	return room, nil
}

// JoinRoom - seats userID in roomID, or reconnects them if they already hold a mark.
func (that *RoomRepository) JoinRoom(ctx context.Context, roomID, userID string) (*entity.RoomState, error) {
	id, err := validateRoomID(opJoin, roomID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(userID) == "" {
		return nil, apperror.New(apperror.KindInvalidInput, opJoin, "user id is empty")
	}

	key := roomKey(id)

	err = that.retry.do(ctx, that.logger, opJoin, func() error {
		return that.client.Watch(ctx, func(tx *redis.Tx) error {
			hash, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}

			room, err := decodeRoom(id, hash)
			if err != nil {
				return err
			}

			fields, err := joinFields(room, userID)
			if err != nil || len(fields) == 0 {
				return err
			}

			return that.commit(ctx, tx, id, fields)
		}, key)
	})
	if err != nil {
		return nil, err
	}

	return that.GetRoom(ctx, id)
}

// joinFields - the writes a join needs; empty when the join changes nothing.
func joinFields(room *entity.RoomState, userID string) (map[string]any, error) {
	if room.IsFinished() {
		return nil, apperror.New(apperror.KindAlreadyFinished, opJoin, "")
	}

	fields := map[string]any{}

	if mark := room.Players.MarkOf(userID); mark != entity.MarkNone {
		if room.IsOpponentLeft() && room.Players.Both() {
			err := putJSON(fields, map[string]any{
				fieldStatus: entity.StatusActive,
				fieldLeftBy: entity.MarkNone,
			})
			return fields, err
		}

		return nil, nil
	}

	var mark entity.Mark
	switch {
	case room.Players.X == "":
		mark = entity.MarkX
	case room.Players.O == "":
		mark = entity.MarkO
	default:
		return nil, apperror.New(apperror.KindFull, opJoin, "")
	}

	values := map[string]any{playerField(mark): userID}
	if room.Players.With(mark, userID).Both() {
		values[fieldStatus] = entity.StatusActive
		values[fieldLeftBy] = entity.MarkNone
	}

	return fields, putJSON(fields, values)
}

// UpdateRoom - writes the set fields of update. The existence check and the write are atomic;
// with ExpectedVersion set, a document that moved on since that version is a conflict.
func (that *RoomRepository) UpdateRoom(ctx context.Context, roomID string, update RoomUpdate) error {
	id, err := validateRoomID(opUpdate, roomID)
	if err != nil {
		return err
	}

	fields, err := update.fields()
	if err != nil {
		return apperror.Wrap(apperror.KindInvalidInput, opUpdate, err)
	}

	key := roomKey(id)

	return that.retry.do(ctx, that.logger, opUpdate, func() error {
		return that.client.Watch(ctx, func(tx *redis.Tx) error {
			version, err := tx.HGet(ctx, key, fieldVersion).Int64()
			if errors.Is(err, redis.Nil) {
				return apperror.New(apperror.KindNotFound, opUpdate, fmt.Sprintf("room %s not found", id))
			}
			if err != nil {
				return err
			}

			if update.ExpectedVersion > 0 && version != update.ExpectedVersion {
				return apperror.New(apperror.KindConflict, opUpdate,
					fmt.Sprintf("room is at version %d, expected %d", version, update.ExpectedVersion))
			}

			return that.commit(ctx, tx, id, fields)
		}, key)
	})
}

// commit - applies fields inside MULTI/EXEC, stamping updatedAt with the server clock.
func (that *RoomRepository) commit(ctx context.Context, tx *redis.Tx, id string, fields map[string]any) error {
	now, err := tx.Time(ctx).Result()
	if err != nil {
		return err
	}

	stamp, err := json.Marshal(now.UTC())
	if err != nil {
		return err
	}
	fields[fieldUpdatedAt] = string(stamp)

	key := roomKey(id)
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.HIncrBy(ctx, key, fieldVersion, 1)
		that.touch(ctx, pipe, id)
		return nil
	})

	return err
}

// touch - refreshes the room lifetime and notifies subscribers.
func (that *RoomRepository) touch(ctx context.Context, pipe redis.Pipeliner, id string) {
	if that.ttl > 0 {
		pipe.Expire(ctx, roomKey(id), that.ttl)
	}
	pipe.Publish(ctx, changesChannel(id), changeNotice)
}

// SubscribeToRoom - delivers the current document and then every change of it to callback,
// one delivery at a time. Failures are delivered as categorized errors; a snapshot with a
// corrupt board is never delivered. The returned function stops the subscription.
func (that *RoomRepository) SubscribeToRoom(
	ctx context.Context,
	roomID string,
	callback func(*entity.RoomState, error),
) (func(), error) {
	id, err := validateRoomID(opSubscribe, roomID)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	pubsub := that.client.Subscribe(subCtx, changesChannel(id))

	if _, err = pubsub.Receive(subCtx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, classify(opSubscribe, err)
	}

	go that.watch(subCtx, id, pubsub, callback)

	return cancel, nil
}

func (that *RoomRepository) watch(ctx context.Context, id string, pubsub *redis.PubSub, callback func(*entity.RoomState, error)) {
	log := that.logger.With("method", "watch", "room_id", id)

	// a blocked receive only returns once the connection is closed
	stop := context.AfterFunc(ctx, func() { _ = pubsub.Close() })
	defer stop()
	defer pubsub.Close()

	that.deliver(ctx, id, callback)

	for {
		_, err := pubsub.ReceiveMessage(ctx)
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			log.Warn("room subscription interrupted", "error", err)
			callback(nil, apperror.Wrap(apperror.KindNetwork, opSubscribe, err))

			if errors.Is(err, redis.ErrClosed) {
				return
			}

			// the next receive reconnects; resync afterwards since notices may have been lost
			select {
			case <-ctx.Done():
				return
			case <-time.After(that.retry.BaseDelay):
			}
		}

		that.deliver(ctx, id, callback)
	}
}

func (that *RoomRepository) deliver(ctx context.Context, id string, callback func(*entity.RoomState, error)) {
	room, err := that.GetRoom(ctx, id)
	if ctx.Err() != nil {
		return
	}

	callback(room, err)
}

func decodeRoom(id string, hash map[string]string) (*entity.RoomState, error) {
	if len(hash) == 0 {
		return nil, apperror.New(apperror.KindNotFound, opRead, fmt.Sprintf("room %s not found", id))
	}

	rawBoard, ok := hash[fieldBoard]
	if !ok {
		return nil, apperror.New(apperror.KindCorruptData, opRead, "room has no board")
	}

	board, err := DecodeBoard([]byte(rawBoard))
	if err != nil {
		return nil, err
	}

	room := &entity.RoomState{ID: id}
	room.Board = board

	targets := map[string]any{
		fieldCurrentPlayer:     &room.CurrentPlayer,
		fieldSelectedTeams:     &room.SelectedTeams,
		fieldSelectedCountries: &room.SelectedCountries,
		fieldTeamOrder:         &room.TeamOrder,
		fieldCountryOrder:      &room.CountryOrder,
		fieldScores:            &room.Scores,
		fieldGameOver:          &room.GameOver,
		fieldWinner:            &room.Winner,
		fieldGameMode:          &room.GameMode,
		fieldPlayerX:           &room.Players.X,
		fieldPlayerO:           &room.Players.O,
		fieldStatus:            &room.Status,
		fieldLeftBy:            &room.LeftBy,
		fieldCreatedAt:         &room.CreatedAt,
		fieldUpdatedAt:         &room.UpdatedAt,
	}

	for field, target := range targets {
		raw, ok := hash[field]
		if !ok {
			continue
		}

		if err = json.Unmarshal([]byte(raw), target); err != nil {
			return nil, apperror.New(apperror.KindCorruptData, opRead, fmt.Sprintf("field %s: %v", field, err))
		}
	}

	if room.Version, err = strconv.ParseInt(hash[fieldVersion], 10, 64); err != nil {
		return nil, apperror.New(apperror.KindCorruptData, opRead, "room version is not a number")
	}

	if !room.Status.IsValid() {
		return nil, apperror.New(apperror.KindCorruptData, opRead, fmt.Sprintf("unknown status %q", room.Status))
	}

	return room, nil
}

func playerField(mark entity.Mark) string {
	if mark == entity.MarkO {
		return fieldPlayerO
	}

	return fieldPlayerX
}

// putJSON - stores every value JSON-encoded into fields.
func putJSON(fields map[string]any, values map[string]any) error {
	for field, value := range values {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", field, err)
		}
		fields[field] = string(data)
	}

	return nil
}

func gameFields(game *entity.GameState) (map[string]any, error) {
	board, err := encodeBoard(game.Board)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{fieldBoard: board}
	err = putJSON(fields, map[string]any{
		fieldCurrentPlayer:     game.CurrentPlayer,
		fieldSelectedTeams:     nonNil(game.SelectedTeams),
		fieldSelectedCountries: nonNil(game.SelectedCountries),
		fieldTeamOrder:         nonNil(game.TeamOrder),
		fieldCountryOrder:      nonNil(game.CountryOrder),
		fieldScores:            game.Scores,
		fieldGameOver:          game.GameOver,
		fieldWinner:            game.Winner,
		fieldGameMode:          game.GameMode,
	})

	return fields, err
}

func nonNil(labels []string) []string {
	if labels == nil {
		return []string{}
	}

	return labels
}
