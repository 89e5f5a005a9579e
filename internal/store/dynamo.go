package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"wopsai/auth-api/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/spf13/viper"
)

// dynamoStore is the managed backend. Tables are provisioned by the
// deployment (Terraform), not here; the tokens and refresh tables carry a
// native TTL on expires_at so expired rows disappear on their own.
type dynamoStore struct {
	c       *dynamodb.Client
	users   string
	tokens  string
	refresh string
	usage   string
	timeout time.Duration
}

func NewDynamo(timeout time.Duration) (Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO())
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config, %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if r := viper.GetString("aws.region"); r != "" {
			o.Region = r
		}
	})

	s := &dynamoStore{
		c:       client,
		users:   viper.GetString("aws.users_table"),
		tokens:  viper.GetString("aws.tokens_table"),
		refresh: viper.GetString("aws.refresh_table"),
		usage:   viper.GetString("aws.usage_table"),
		timeout: timeout,
	}

	ctx, cancel := s.ctx(context.Background())
	defer cancel()

	_, err = client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.users),
	})
	if err != nil {
		var apiErr smithy.APIError

		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException" {
			return nil, fmt.Errorf("table '%s' does not exist", s.users)
		}

		return nil, fmt.Errorf("failed to check if users table exists, %w", err)
	}

	return s, nil
}

func (s *dynamoStore) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

func mapDynamoErr(err error) error {
	if err == nil {
		return nil
	}

	var cond *types.ConditionalCheckFailedException
	if errors.As(err, &cond) {
		return ErrConditionFailed
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (s *dynamoStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	out, err := s.c.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.users),
		IndexName:              aws.String("email-index"),
		KeyConditionExpression: aws.String("email = :e"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":e": &types.AttributeValueMemberS{Value: email},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, mapDynamoErr(err)
	}

	if len(out.Items) == 0 {
		return nil, ErrNotFound
	}

	var u model.User
	if err := attributevalue.UnmarshalMap(out.Items[0], &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &u, nil
}

func (s *dynamoStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	out, err := s.c.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.users),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, mapDynamoErr(err)
	}

	if out.Item == nil {
		return nil, ErrNotFound
	}

	var u model.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &u, nil
}

func (s *dynamoStore) CreateUser(ctx context.Context, u *model.User) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	_, err = s.c.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.users),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(user_id)"),
	})
	if errors.Is(mapDynamoErr(err), ErrConditionFailed) {
		return ErrDuplicate
	}

	return mapDynamoErr(err)
}

func (s *dynamoStore) UpdateUser(ctx context.Context, u *model.User) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	_, err = s.c.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.users),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(user_id)"),
	})
	if errors.Is(mapDynamoErr(err), ErrConditionFailed) {
		return ErrNotFound
	}

	return mapDynamoErr(err)
}

func (s *dynamoStore) PutToken(ctx context.Context, t *model.VerificationToken) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	// Invalidate any outstanding token for the same (email, purpose)
	// first. A crash between the two steps leaves only fewer live tokens,
	// never more.
	out, err := s.c.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tokens),
		IndexName:              aws.String("email-index"),
		KeyConditionExpression: aws.String("email = :e"),
		FilterExpression:       aws.String("purpose = :p AND used = :f"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":e": &types.AttributeValueMemberS{Value: t.Email},
			":p": &types.AttributeValueMemberS{Value: t.Purpose},
			":f": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		return mapDynamoErr(err)
	}

	now := time.Now()

	for _, item := range out.Items {
		var old model.VerificationToken
		if err := attributevalue.UnmarshalMap(item, &old); err != nil {
			continue
		}

		if err := s.markTokenUsed(ctx, old.Token, now); err != nil && !errors.Is(err, ErrConditionFailed) {
			return err
		}
	}

	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	_, err = s.c.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tokens),
		Item:      item,
	})

	return mapDynamoErr(err)
}

func (s *dynamoStore) GetToken(ctx context.Context, token string) (*model.VerificationToken, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	out, err := s.c.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tokens),
		Key: map[string]types.AttributeValue{
			"token": &types.AttributeValueMemberS{Value: token},
		},
	})
	if err != nil {
		return nil, mapDynamoErr(err)
	}

	if out.Item == nil {
		return nil, ErrNotFound
	}

	var t model.VerificationToken
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &t, nil
}

func (s *dynamoStore) markTokenUsed(ctx context.Context, token string, now time.Time) error {
	_, err := s.c.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tokens),
		Key: map[string]types.AttributeValue{
			"token": &types.AttributeValueMemberS{Value: token},
		},
		UpdateExpression:    aws.String("SET used = :t, used_at = :n"),
		ConditionExpression: aws.String("attribute_exists(#tok) AND used = :f"),
		ExpressionAttributeNames: map[string]string{
			"#tok": "token",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
			":f": &types.AttributeValueMemberBOOL{Value: false},
			":n": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})

	return mapDynamoErr(err)
}

func (s *dynamoStore) ConsumeToken(ctx context.Context, token string) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	// Single conditional write: two concurrent redemptions can't both win
	return s.markTokenUsed(ctx, token, time.Now())
}

func (s *dynamoStore) PutRefreshToken(ctx context.Context, t *model.RefreshToken) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	_, err = s.c.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.refresh),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(token_id)"),
	})
	if errors.Is(mapDynamoErr(err), ErrConditionFailed) {
		return ErrDuplicate
	}

	return mapDynamoErr(err)
}

func (s *dynamoStore) GetRefreshToken(ctx context.Context, id string) (*model.RefreshToken, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	out, err := s.c.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.refresh),
		Key: map[string]types.AttributeValue{
			"token_id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, mapDynamoErr(err)
	}

	if out.Item == nil {
		return nil, ErrNotFound
	}

	var t model.RefreshToken
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &t, nil
}

func (s *dynamoStore) RevokeRefreshToken(ctx context.Context, id string) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	_, err := s.c.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.refresh),
		Key: map[string]types.AttributeValue{
			"token_id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:    aws.String("SET revoked = :t"),
		ConditionExpression: aws.String("attribute_exists(token_id) AND revoked = :f"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
			":f": &types.AttributeValueMemberBOOL{Value: false},
		},
	})

	return mapDynamoErr(err)
}

func (s *dynamoStore) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	out, err := s.c.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.refresh),
		IndexName:              aws.String("user-index"),
		KeyConditionExpression: aws.String("user_id = :u"),
		FilterExpression:       aws.String("revoked = :f"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: userID},
			":f": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		return mapDynamoErr(err)
	}

	for _, item := range out.Items {
		var t model.RefreshToken
		if err := attributevalue.UnmarshalMap(item, &t); err != nil {
			continue
		}

		if err := s.RevokeRefreshToken(ctx, t.ID); err != nil && !errors.Is(err, ErrConditionFailed) {
			return err
		}
	}

	return nil
}

func (s *dynamoStore) GetUsage(ctx context.Context, userID, date string) (int, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	out, err := s.c.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.usage),
		Key: map[string]types.AttributeValue{
			"user_id":    &types.AttributeValueMemberS{Value: userID},
			"usage_date": &types.AttributeValueMemberS{Value: date},
		},
	})
	if err != nil {
		return 0, mapDynamoErr(err)
	}

	if out.Item == nil {
		return 0, nil
	}

	var r model.UsageRecord
	if err := attributevalue.UnmarshalMap(out.Item, &r); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return r.Count, nil
}

func (s *dynamoStore) IncrementUsage(ctx context.Context, userID, date string, cost, ceiling int) (int, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	// ADD is atomic and the condition caps the counter in the same write,
	// so concurrent increments can't jointly exceed the quota
	out, err := s.c.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.usage),
		Key: map[string]types.AttributeValue{
			"user_id":    &types.AttributeValueMemberS{Value: userID},
			"usage_date": &types.AttributeValueMemberS{Value: date},
		},
		UpdateExpression:    aws.String("ADD usage_count :c SET updated_at = :n"),
		ConditionExpression: aws.String("attribute_not_exists(usage_count) OR usage_count <= :max"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c":   &types.AttributeValueMemberN{Value: strconv.Itoa(cost)},
			":n":   &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Unix(), 10)},
			":max": &types.AttributeValueMemberN{Value: strconv.Itoa(ceiling - cost)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return 0, mapDynamoErr(err)
	}

	var r model.UsageRecord
	if err := attributevalue.UnmarshalMap(out.Attributes, &r); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return r.Count, nil
}

func (s *dynamoStore) RecordLoginFailure(ctx context.Context, userID string, threshold int, lockFor time.Duration) (int, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	out, err := s.c.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.users),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression:    aws.String("ADD failed_logins :one"),
		ConditionExpression: aws.String("attribute_exists(user_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if errors.Is(mapDynamoErr(err), ErrConditionFailed) {
			return 0, ErrNotFound
		}

		return 0, mapDynamoErr(err)
	}

	var u model.User
	if err := attributevalue.UnmarshalMap(out.Attributes, &u); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if u.FailedLogins >= threshold {
		lockUntil := time.Now().Add(lockFor)

		// A racing attempt may re-stamp the lockout a moment later; that
		// can only extend the window, never lose a failure
		_, err = s.c.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(s.users),
			Key: map[string]types.AttributeValue{
				"user_id": &types.AttributeValueMemberS{Value: userID},
			},
			UpdateExpression: aws.String("SET lock_until = :l"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":l": &types.AttributeValueMemberN{Value: strconv.FormatInt(lockUntil.Unix(), 10)},
			},
		})
		if err != nil {
			return u.FailedLogins, mapDynamoErr(err)
		}
	}

	return u.FailedLogins, nil
}

func (s *dynamoStore) ResetLoginFailures(ctx context.Context, userID string) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	_, err := s.c.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.users),
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
		UpdateExpression:    aws.String("SET failed_logins = :z, last_login = :n REMOVE lock_until"),
		ConditionExpression: aws.String("attribute_exists(user_id)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":z": &types.AttributeValueMemberN{Value: "0"},
			":n": &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Unix(), 10)},
		},
	})
	if errors.Is(mapDynamoErr(err), ErrConditionFailed) {
		return ErrNotFound
	}

	return mapDynamoErr(err)
}
