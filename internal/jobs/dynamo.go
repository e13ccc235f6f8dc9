package jobs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design. All records for a job
// share the partition key JOB#{jobId}; the sort key distinguishes record
// types (currently only META). A TTL attribute auto-deletes records after
// RecordTTL, matching the result artifact lifecycle policy.
const (
	pkPrefix = "JOB#"
	skMeta   = "META"

	// RecordTTL is the time-to-live for job records.
	RecordTTL = 24 * time.Hour
)

// DynamoStore implements Store on AWS DynamoDB so job state survives process
// restarts and is visible across instances.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table. The client
// should be initialized from the shared AWS config.
func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

// jobPK returns the partition key for a job.
func jobPK(jobID string) string {
	return pkPrefix + jobID
}

// expiresAt returns the Unix epoch timestamp for record expiration.
func expiresAt() int64 {
	return time.Now().Add(RecordTTL).Unix()
}

func (s *DynamoStore) Put(ctx context.Context, job *Job) error {
	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: jobPK(job.ID)}
	item["SK"] = &types.AttributeValueMemberS{Value: skMeta}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem job %s: %w", job.ID, err)
	}

	log.Debug().Str("jobId", job.ID).Str("status", string(job.Status)).Msg("Job record persisted")
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, jobID string) (*Job, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: jobPK(jobID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem job %s: %w", jobID, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var job Job
	if err := attributevalue.UnmarshalMap(result.Item, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", jobID, err)
	}
	job.ID = jobID
	return &job, nil
}

// Merge applies a partial update with a single UpdateItem call. Only the set
// fields of patch appear in the update expression; UpdatedAt is always
// stamped. A merge against a missing record is suppressed by a condition so
// it cannot resurrect an expired job.
func (s *DynamoStore) Merge(ctx context.Context, jobID string, patch Patch) error {
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	expr := "SET #updatedAt = :updatedAt"
	names["#updatedAt"] = "updatedAt"
	values[":updatedAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().Unix(), 10)}

	set := func(attr string, av types.AttributeValue) {
		placeholder := "#" + attr
		names[placeholder] = attr
		expr += fmt.Sprintf(", %s = :%s", placeholder, attr)
		values[":"+attr] = av
	}

	if patch.Status != nil {
		set("status", &types.AttributeValueMemberS{Value: string(*patch.Status)})
	}
	if patch.Step != nil {
		set("step", &types.AttributeValueMemberS{Value: string(*patch.Step)})
	}
	if patch.Progress != nil {
		set("progress", &types.AttributeValueMemberN{Value: strconv.Itoa(*patch.Progress)})
	}
	if patch.Message != nil {
		set("message", &types.AttributeValueMemberS{Value: *patch.Message})
	}
	if patch.ErrorCode != nil {
		set("errorCode", &types.AttributeValueMemberS{Value: *patch.ErrorCode})
	}
	if patch.ErrorMessage != nil {
		set("errorMessage", &types.AttributeValueMemberS{Value: *patch.ErrorMessage})
	}
	if patch.TranscriptKey != nil {
		set("transcriptKey", &types.AttributeValueMemberS{Value: *patch.TranscriptKey})
	}
	if patch.NarrativeKey != nil {
		set("narrativeKey", &types.AttributeValueMemberS{Value: *patch.NarrativeKey})
	}
	if patch.AudioKey != nil {
		set("audioKey", &types.AttributeValueMemberS{Value: *patch.AudioKey})
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: jobPK(jobID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			log.Debug().Str("jobId", jobID).Msg("Merge skipped: job record does not exist")
			return nil
		}
		return fmt.Errorf("UpdateItem job %s: %w", jobID, err)
	}
	return nil
}
