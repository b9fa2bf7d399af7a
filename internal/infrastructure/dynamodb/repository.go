package dynamodb

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	awsv2dynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsv2types "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	awsv2xray "github.com/aws/aws-xray-sdk-go/instrumentation/awsv2"
	"github.com/aws/aws-xray-sdk-go/xray"
	"visa-tracker/internal/domain"
)

type dynamoAPI interface {
	PutItem(ctx context.Context, in *awsv2dynamodb.PutItemInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *awsv2dynamodb.GetItemInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, in *awsv2dynamodb.ScanInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.ScanOutput, error)
	DeleteItem(ctx context.Context, in *awsv2dynamodb.DeleteItemInput, optFns ...func(*awsv2dynamodb.Options)) (*awsv2dynamodb.DeleteItemOutput, error)
}

type Client struct {
	db        dynamoAPI
	tableName string
}

func NewClient(ctx context.Context, region, tableName string) (*Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	awsv2xray.AWSV2Instrumentor(&cfg.APIOptions)
	client := awsv2dynamodb.NewFromConfig(cfg)
	return &Client{db: client, tableName: tableName}, nil
}

func applicationPK(id string) string { return "APPL#" + id }
func adminPK(id string) string       { return "ADMIN#" + id }
func adminEmailPK(email string) string {
	return "ADMINEMAIL#" + email
}
func metaSK() string { return "META" }

func isConditionalCheckFailure(err error) bool {
	var condErr *awsv2types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}

type applicationItem struct {
	PK            string `dynamodbav:"PK"`
	SK            string `dynamodbav:"SK"`
	EntityType    string `dynamodbav:"EntityType"`
	ApplicationID string `dynamodbav:"ApplicationID"`
	Name          string `dynamodbav:"Name"`
	Passport      string `dynamodbav:"PassportNumber"`
	Nationality   string `dynamodbav:"Nationality"`
	DOB           string `dynamodbav:"DOB"`
	Address       string `dynamodbav:"Address"`
	Status        string `dynamodbav:"Status"`
	DocProvider   string `dynamodbav:"DocProvider,omitempty"`
	DocRef        string `dynamodbav:"DocRef,omitempty"`
	DocType       string `dynamodbav:"DocContentType,omitempty"`
	CreatedAt     string `dynamodbav:"CreatedAt"`
	UpdatedAt     string `dynamodbav:"UpdatedAt"`
}

func toApplicationItem(app domain.Application) applicationItem {
	item := applicationItem{
		PK:            applicationPK(app.ApplicationID),
		SK:            metaSK(),
		EntityType:    "APPLICATION",
		ApplicationID: app.ApplicationID,
		Name:          app.Name,
		Passport:      app.PassportNumber,
		Nationality:   app.Nationality,
		DOB:           app.DOB.Format(time.RFC3339),
		Address:       app.Address,
		Status:        string(app.Status),
		CreatedAt:     app.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     app.UpdatedAt.Format(time.RFC3339),
	}
	if app.Document != nil {
		item.DocProvider = app.Document.Provider
		item.DocRef = app.Document.Ref
		item.DocType = app.Document.ContentType
	}
	return item
}

func (item applicationItem) toDomain() domain.Application {
	dob, _ := time.Parse(time.RFC3339, item.DOB)
	createdAt, _ := time.Parse(time.RFC3339, item.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, item.UpdatedAt)
	app := domain.Application{
		ApplicationID:  item.ApplicationID,
		Name:           item.Name,
		PassportNumber: item.Passport,
		Nationality:    item.Nationality,
		DOB:            dob,
		Address:        item.Address,
		Status:         domain.Status(item.Status),
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}
	if item.DocRef != "" {
		app.Document = &domain.DocumentRef{
			Provider:    item.DocProvider,
			Ref:         item.DocRef,
			ContentType: item.DocType,
		}
	}
	return app
}

type ApplicationRepository struct{ client *Client }

func NewApplicationRepository(client *Client) *ApplicationRepository {
	return &ApplicationRepository{client: client}
}

func (r *ApplicationRepository) Create(ctx context.Context, app domain.Application) error {
	av, err := attributevalue.MarshalMap(toApplicationItem(app))
	if err != nil {
		return err
	}
	return xray.Capture(ctx, "DynamoDB.PutApplication", func(ctx context.Context) error {
		_, err := r.client.db.PutItem(ctx, &awsv2dynamodb.PutItemInput{
			TableName:           aws.String(r.client.tableName),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
		})
		if isConditionalCheckFailure(err) {
			return domain.ErrConflict
		}
		return err
	})
}

func (r *ApplicationRepository) Get(ctx context.Context, applicationID string) (domain.Application, error) {
	var out *awsv2dynamodb.GetItemOutput
	err := xray.Capture(ctx, "DynamoDB.GetApplication", func(ctx context.Context) error {
		var e error
		out, e = r.client.db.GetItem(ctx, &awsv2dynamodb.GetItemInput{
			TableName: aws.String(r.client.tableName),
			Key: map[string]awsv2types.AttributeValue{
				"PK": &awsv2types.AttributeValueMemberS{Value: applicationPK(applicationID)},
				"SK": &awsv2types.AttributeValueMemberS{Value: metaSK()},
			},
		})
		return e
	})
	if err != nil {
		return domain.Application{}, err
	}
	if out.Item == nil {
		return domain.Application{}, domain.ErrNotFound
	}
	var item applicationItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return domain.Application{}, err
	}
	return item.toDomain(), nil
}

func (r *ApplicationRepository) List(ctx context.Context) ([]domain.Application, error) {
	apps := make([]domain.Application, 0)
	var startKey map[string]awsv2types.AttributeValue
	for {
		var out *awsv2dynamodb.ScanOutput
		err := xray.Capture(ctx, "DynamoDB.ScanApplications", func(ctx context.Context) error {
			var e error
			out, e = r.client.db.Scan(ctx, &awsv2dynamodb.ScanInput{
				TableName:        aws.String(r.client.tableName),
				FilterExpression: aws.String("EntityType = :t"),
				ExpressionAttributeValues: map[string]awsv2types.AttributeValue{
					":t": &awsv2types.AttributeValueMemberS{Value: "APPLICATION"},
				},
				ExclusiveStartKey: startKey,
			})
			return e
		})
		if err != nil {
			return nil, err
		}
		for _, raw := range out.Items {
			var item applicationItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, err
			}
			apps = append(apps, item.toDomain())
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	sort.Slice(apps, func(i, j int) bool {
		return apps[i].CreatedAt.After(apps[j].CreatedAt)
	})
	return apps, nil
}

func (r *ApplicationRepository) Update(ctx context.Context, app domain.Application) error {
	av, err := attributevalue.MarshalMap(toApplicationItem(app))
	if err != nil {
		return err
	}
	return xray.Capture(ctx, "DynamoDB.UpdateApplication", func(ctx context.Context) error {
		_, err := r.client.db.PutItem(ctx, &awsv2dynamodb.PutItemInput{
			TableName:           aws.String(r.client.tableName),
			Item:                av,
			ConditionExpression: aws.String("attribute_exists(PK)"),
		})
		if isConditionalCheckFailure(err) {
			return domain.ErrNotFound
		}
		return err
	})
}

func (r *ApplicationRepository) Delete(ctx context.Context, applicationID string) error {
	return xray.Capture(ctx, "DynamoDB.DeleteApplication", func(ctx context.Context) error {
		_, err := r.client.db.DeleteItem(ctx, &awsv2dynamodb.DeleteItemInput{
			TableName: aws.String(r.client.tableName),
			Key: map[string]awsv2types.AttributeValue{
				"PK": &awsv2types.AttributeValueMemberS{Value: applicationPK(applicationID)},
				"SK": &awsv2types.AttributeValueMemberS{Value: metaSK()},
			},
			ConditionExpression: aws.String("attribute_exists(PK)"),
		})
		if isConditionalCheckFailure(err) {
			return domain.ErrNotFound
		}
		return err
	})
}

type adminItem struct {
	PK           string `dynamodbav:"PK"`
	SK           string `dynamodbav:"SK"`
	EntityType   string `dynamodbav:"EntityType"`
	ID           string `dynamodbav:"ID"`
	Email        string `dynamodbav:"Email"`
	Name         string `dynamodbav:"Name"`
	PasswordHash []byte `dynamodbav:"PasswordHash"`
	EmailUpdated bool   `dynamodbav:"EmailUpdated"`
	CreatedAt    string `dynamodbav:"CreatedAt"`
	UpdatedAt    string `dynamodbav:"UpdatedAt"`
}

func (item adminItem) toDomain() domain.Admin {
	createdAt, _ := time.Parse(time.RFC3339, item.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339, item.UpdatedAt)
	return domain.Admin{
		ID:           item.ID,
		Email:        item.Email,
		Name:         item.Name,
		PasswordHash: item.PasswordHash,
		EmailUpdated: item.EmailUpdated,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}
}

// AdminRepository stores one item per admin plus a pointer item keyed by the
// lower-cased email. The conditional put on the pointer enforces email
// uniqueness; changing the email moves the pointer.
type AdminRepository struct{ client *Client }

func NewAdminRepository(client *Client) *AdminRepository {
	return &AdminRepository{client: client}
}

func (r *AdminRepository) Create(ctx context.Context, admin domain.Admin) error {
	item := adminItem{
		PK:           adminPK(admin.ID),
		SK:           metaSK(),
		EntityType:   "ADMIN",
		ID:           admin.ID,
		Email:        admin.Email,
		Name:         admin.Name,
		PasswordHash: admin.PasswordHash,
		EmailUpdated: admin.EmailUpdated,
		CreatedAt:    admin.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    admin.UpdatedAt.Format(time.RFC3339),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	if err := r.putEmailPointer(ctx, admin.Email, admin.ID); err != nil {
		return err
	}
	err = xray.Capture(ctx, "DynamoDB.PutAdmin", func(ctx context.Context) error {
		_, err := r.client.db.PutItem(ctx, &awsv2dynamodb.PutItemInput{
			TableName:           aws.String(r.client.tableName),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
		})
		if isConditionalCheckFailure(err) {
			return domain.ErrConflict
		}
		return err
	})
	if err != nil {
		// The pointer must not outlive a failed admin write, otherwise the
		// email stays claimed forever.
		r.deleteEmailPointer(ctx, admin.Email)
	}
	return err
}

func (r *AdminRepository) putEmailPointer(ctx context.Context, email, adminID string) error {
	return xray.Capture(ctx, "DynamoDB.PutAdminEmail", func(ctx context.Context) error {
		_, err := r.client.db.PutItem(ctx, &awsv2dynamodb.PutItemInput{
			TableName: aws.String(r.client.tableName),
			Item: map[string]awsv2types.AttributeValue{
				"PK":         &awsv2types.AttributeValueMemberS{Value: adminEmailPK(email)},
				"SK":         &awsv2types.AttributeValueMemberS{Value: metaSK()},
				"EntityType": &awsv2types.AttributeValueMemberS{Value: "ADMIN_EMAIL"},
				"AdminID":    &awsv2types.AttributeValueMemberS{Value: adminID},
			},
			ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
		})
		if isConditionalCheckFailure(err) {
			return domain.ErrConflict
		}
		return err
	})
}

func (r *AdminRepository) GetByID(ctx context.Context, id string) (domain.Admin, error) {
	var out *awsv2dynamodb.GetItemOutput
	err := xray.Capture(ctx, "DynamoDB.GetAdmin", func(ctx context.Context) error {
		var e error
		out, e = r.client.db.GetItem(ctx, &awsv2dynamodb.GetItemInput{
			TableName: aws.String(r.client.tableName),
			Key: map[string]awsv2types.AttributeValue{
				"PK": &awsv2types.AttributeValueMemberS{Value: adminPK(id)},
				"SK": &awsv2types.AttributeValueMemberS{Value: metaSK()},
			},
		})
		return e
	})
	if err != nil {
		return domain.Admin{}, err
	}
	if out.Item == nil {
		return domain.Admin{}, domain.ErrNotFound
	}
	var item adminItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return domain.Admin{}, err
	}
	return item.toDomain(), nil
}

func (r *AdminRepository) GetByEmail(ctx context.Context, email string) (domain.Admin, error) {
	var out *awsv2dynamodb.GetItemOutput
	err := xray.Capture(ctx, "DynamoDB.GetAdminEmail", func(ctx context.Context) error {
		var e error
		out, e = r.client.db.GetItem(ctx, &awsv2dynamodb.GetItemInput{
			TableName: aws.String(r.client.tableName),
			Key: map[string]awsv2types.AttributeValue{
				"PK": &awsv2types.AttributeValueMemberS{Value: adminEmailPK(email)},
				"SK": &awsv2types.AttributeValueMemberS{Value: metaSK()},
			},
		})
		return e
	})
	if err != nil {
		return domain.Admin{}, err
	}
	if out.Item == nil {
		return domain.Admin{}, domain.ErrNotFound
	}
	raw := struct {
		AdminID string `dynamodbav:"AdminID"`
	}{}
	if err := attributevalue.UnmarshalMap(out.Item, &raw); err != nil {
		return domain.Admin{}, err
	}
	return r.GetByID(ctx, raw.AdminID)
}

func (r *AdminRepository) Update(ctx context.Context, admin domain.Admin) error {
	current, err := r.GetByID(ctx, admin.ID)
	if err != nil {
		return err
	}
	if current.Email != admin.Email {
		if err := r.putEmailPointer(ctx, admin.Email, admin.ID); err != nil {
			return err
		}
		r.deleteEmailPointer(ctx, current.Email)
	}
	item := adminItem{
		PK:           adminPK(admin.ID),
		SK:           metaSK(),
		EntityType:   "ADMIN",
		ID:           admin.ID,
		Email:        admin.Email,
		Name:         admin.Name,
		PasswordHash: admin.PasswordHash,
		EmailUpdated: admin.EmailUpdated,
		CreatedAt:    admin.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    admin.UpdatedAt.Format(time.RFC3339),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return err
	}
	return xray.Capture(ctx, "DynamoDB.UpdateAdmin", func(ctx context.Context) error {
		_, err := r.client.db.PutItem(ctx, &awsv2dynamodb.PutItemInput{
			TableName:           aws.String(r.client.tableName),
			Item:                av,
			ConditionExpression: aws.String("attribute_exists(PK)"),
		})
		if isConditionalCheckFailure(err) {
			return domain.ErrNotFound
		}
		return err
	})
}

// deleteEmailPointer is best-effort; a stale pointer only blocks re-use of an
// address that was abandoned mid-update.
func (r *AdminRepository) deleteEmailPointer(ctx context.Context, email string) {
	_ = xray.Capture(ctx, "DynamoDB.DeleteAdminEmail", func(ctx context.Context) error {
		_, err := r.client.db.DeleteItem(ctx, &awsv2dynamodb.DeleteItemInput{
			TableName: aws.String(r.client.tableName),
			Key: map[string]awsv2types.AttributeValue{
				"PK": &awsv2types.AttributeValueMemberS{Value: adminEmailPK(email)},
				"SK": &awsv2types.AttributeValueMemberS{Value: metaSK()},
			},
		})
		return err
	})
}
