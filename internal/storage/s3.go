package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/keyfold/passkey/internal/models"
)

// S3Storage stores records as JSON objects in an S3-compatible bucket:
// users/, credentials/, backup-codes/, and events/.
type S3Storage struct {
	client *minio.Client
	bucket string
}

func NewS3Storage(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*S3Storage, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &S3Storage{
		client: client,
		bucket: bucket,
	}, nil
}

func (s *S3Storage) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.getJSON(ctx, fmt.Sprintf("users/%s.json", userID), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *S3Storage) SaveUser(ctx context.Context, user *models.User) error {
	return s.putJSON(ctx, fmt.Sprintf("users/%s.json", user.ID), user)
}

func (s *S3Storage) GetCredential(ctx context.Context, credentialID []byte) (*models.Credential, error) {
	var cred models.Credential
	if err := s.getJSON(ctx, credentialObjectKey(credentialID), &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *S3Storage) GetUserCredentials(ctx context.Context, userID string) ([]*models.Credential, error) {
	var creds []*models.Credential
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: "credentials/"}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list credentials: %w", object.Err)
		}
		var cred models.Credential
		if err := s.getJSON(ctx, object.Key, &cred); err != nil {
			continue // skip objects deleted mid-listing
		}
		if cred.UserID == userID {
			creds = append(creds, &cred)
		}
	}
	return creds, nil
}

func (s *S3Storage) SaveCredential(ctx context.Context, cred *models.Credential) error {
	return s.putJSON(ctx, credentialObjectKey(cred.ID), cred)
}

func (s *S3Storage) UpdateCredential(ctx context.Context, cred *models.Credential) error {
	key := credentialObjectKey(cred.ID)
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ErrNotFound
		}
		return fmt.Errorf("failed to check credential object: %w", err)
	}
	return s.putJSON(ctx, key, cred)
}

func (s *S3Storage) DeleteCredential(ctx context.Context, userID string, credentialID []byte) error {
	cred, err := s.GetCredential(ctx, credentialID)
	if err != nil {
		return err
	}
	if cred.UserID != userID {
		return ErrNotFound
	}
	if err := s.client.RemoveObject(ctx, s.bucket, credentialObjectKey(credentialID), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete credential object: %w", err)
	}
	return nil
}

func (s *S3Storage) ReplaceBackupCodes(ctx context.Context, set *models.BackupCodeSet) error {
	return s.putJSON(ctx, fmt.Sprintf("backup-codes/%s.json", set.UserID), set)
}

func (s *S3Storage) GetBackupCodes(ctx context.Context, userID string) (*models.BackupCodeSet, error) {
	var set models.BackupCodeSet
	if err := s.getJSON(ctx, fmt.Sprintf("backup-codes/%s.json", userID), &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func (s *S3Storage) RemoveBackupCode(ctx context.Context, userID, codeHash string) (int, error) {
	set, err := s.GetBackupCodes(ctx, userID)
	if err != nil {
		return 0, err
	}
	for i, hash := range set.CodeHashes {
		if hash == codeHash {
			set.CodeHashes = append(set.CodeHashes[:i], set.CodeHashes[i+1:]...)
			if err := s.ReplaceBackupCodes(ctx, set); err != nil {
				return 0, err
			}
			return len(set.CodeHashes), nil
		}
	}
	return 0, ErrNotFound
}

func (s *S3Storage) AppendSecurityEvent(ctx context.Context, event *models.SecurityEvent) error {
	key := fmt.Sprintf("events/%s-%s.json", event.CreatedAt.UTC().Format(time.RFC3339Nano), event.ID)
	return s.putJSON(ctx, key, event)
}

func (s *S3Storage) getJSON(ctx context.Context, key string, v any) error {
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to get %s from S3: %w", key, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", key, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

func (s *S3Storage) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to save %s to S3: %w", key, err)
	}
	return nil
}

func credentialObjectKey(credentialID []byte) string {
	return fmt.Sprintf("credentials/%s.json", credentialKey(credentialID))
}
