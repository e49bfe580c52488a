package resolver

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"sitefoundry.io/foreman/internal/domain"
)

// Directory is the account lookup surface the resolver queries.
// Implemented by MongoDirectory; tests substitute a fake.
type Directory interface {
	// AdminsByClient returns admin accounts belonging to the tenant.
	AdminsByClient(ctx context.Context, clientID string) ([]domain.Recipient, error)

	// StaffByClient returns staff accounts whose client-membership relation
	// includes the tenant.
	StaffByClient(ctx context.Context, clientID string) ([]domain.Recipient, error)

	// ProjectAssignedStaff returns the denormalized assigned-staff
	// subdocuments of a project. Email is unavailable on those records.
	ProjectAssignedStaff(ctx context.Context, projectID string) ([]domain.Recipient, error)
}

// accountDoc is the directory document shape shared by admins and staffs.
// IsActive is a pointer so an absent field reads as "not explicitly inactive".
type accountDoc struct {
	UserID   string `bson:"_id"`
	ClientID string `bson:"clientId"`
	FullName string `bson:"fullName"`
	Email    string `bson:"email"`
	Role     string `bson:"role"`
	IsActive *bool  `bson:"isActive"`
}

func (d accountDoc) toRecipient(userType domain.UserType, clientID string) domain.Recipient {
	cid := d.ClientID
	if cid == "" {
		cid = clientID
	}
	return domain.Recipient{
		UserID:   d.UserID,
		UserType: userType,
		ClientID: cid,
		FullName: d.FullName,
		Email:    d.Email,
		Role:     d.Role,
		IsActive: d.IsActive == nil || *d.IsActive,
	}
}

// projectDoc carries only the assigned-staff subdocuments the fallback needs.
type projectDoc struct {
	AssignedStaff []struct {
		UserID   string `bson:"userId"`
		FullName string `bson:"fullName"`
		Role     string `bson:"role"`
	} `bson:"assignedStaff"`
}

// MongoDirectory reads the admins, staffs and projects collections.
type MongoDirectory struct {
	admins   *mongo.Collection
	staffs   *mongo.Collection
	projects *mongo.Collection
}

// NewMongoDirectory creates a directory over the given collection handles.
func NewMongoDirectory(admins, staffs, projects *mongo.Collection) *MongoDirectory {
	return &MongoDirectory{admins: admins, staffs: staffs, projects: projects}
}

var _ Directory = (*MongoDirectory)(nil)

// AdminsByClient queries the admin collection by tenant id.
func (d *MongoDirectory) AdminsByClient(ctx context.Context, clientID string) ([]domain.Recipient, error) {
	return d.findAccounts(ctx, d.admins, bson.M{"clientId": clientID}, domain.UserTypeAdmin, clientID)
}

// StaffByClient queries staff via the many-to-many client-membership array.
func (d *MongoDirectory) StaffByClient(ctx context.Context, clientID string) ([]domain.Recipient, error) {
	return d.findAccounts(ctx, d.staffs, bson.M{"clients": clientID}, domain.UserTypeStaff, clientID)
}

func (d *MongoDirectory) findAccounts(ctx context.Context, coll *mongo.Collection, filter bson.M, userType domain.UserType, clientID string) ([]domain.Recipient, error) {
	cursor, err := coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find %s accounts: %w", userType, err)
	}
	var docs []accountDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s accounts: %w", userType, err)
	}

	recipients := make([]domain.Recipient, 0, len(docs))
	for _, doc := range docs {
		recipients = append(recipients, doc.toRecipient(userType, clientID))
	}
	return recipients, nil
}

// ProjectAssignedStaff loads a project's assigned-staff subdocuments.
// The denormalized records carry no email and no activity flag; recipients
// are assumed active with an empty email.
func (d *MongoDirectory) ProjectAssignedStaff(ctx context.Context, projectID string) ([]domain.Recipient, error) {
	var doc projectDoc
	err := d.projects.FindOne(ctx, bson.M{"_id": projectID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("find project %s: %w", projectID, err)
	}

	recipients := make([]domain.Recipient, 0, len(doc.AssignedStaff))
	for _, s := range doc.AssignedStaff {
		recipients = append(recipients, domain.Recipient{
			UserID:   s.UserID,
			UserType: domain.UserTypeStaff,
			FullName: s.FullName,
			Role:     s.Role,
			Email:    "",
			IsActive: true,
		})
	}
	return recipients, nil
}
