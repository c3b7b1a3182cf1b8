package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"ilmhub_go/database"
	"ilmhub_go/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Events stay hot in MySQL long enough that any replay, dispute or audit can
// still hit the live log; only stamped events of long-terminal sessions move
// to cold storage.
const archiveEventAgeDays = 180

// ArchiveService moves aged attendance events and activity logs into ZIP
// archives on S3, keeping a metadata row per archive for retrieval.
type ArchiveService struct {
	awsConfig aws.Config
}

// ArchivedEvent is the exported representation stored inside archives.
type ArchivedEvent struct {
	ID              uint           `json:"id"`
	EventID         string         `json:"event_id"`
	EventType       string         `json:"event_type"`
	EventTimestamp  time.Time      `json:"event_timestamp"`
	SessionKind     string         `json:"session_kind"`
	SessionID       uint           `json:"session_id"`
	UserID          uint           `json:"user_id"`
	ParticipantSID  string         `json:"participant_sid"`
	LeftAt          *time.Time     `json:"left_at,omitempty"`
	DurationMinutes *int           `json:"duration_minutes,omitempty"`
	LeaveEventID    *string        `json:"leave_event_id,omitempty"`
	RawPayload      map[string]any `json:"raw_payload,omitempty"`
}

// NewArchiveService creates a new service instance
func NewArchiveService() *ArchiveService {
	cfg, err := awscfg.LoadDefaultConfig(context.Background(), awscfg.WithRegion(os.Getenv("AWS_REGION")))
	if err != nil {
		logrus.WithError(err).Warn("Failed to load AWS config; S3 operations will fail until configured")
	}
	return &ArchiveService{awsConfig: cfg}
}

// FlushOnce runs one archive pass: Redis-cached activity logs into the
// database, then aged attendance events and activity logs into S3.
func (as *ArchiveService) FlushOnce() error {
	if err := as.FlushCachedLogs(); err != nil {
		logrus.WithError(err).Warn("Failed to flush cached activity logs")
	}
	if err := as.ArchiveOldEvents(archiveEventAgeDays); err != nil {
		return err
	}
	return as.ArchiveOldActivityLogs(30)
}

// FlushCachedLogs moves activity logs older than 24h from the Redis cache to
// the database.
func (as *ArchiveService) FlushCachedLogs() error {
	redisClient := database.GetRedisClient()
	if redisClient == nil {
		return fmt.Errorf("redis client not available")
	}

	ctx := context.Background()
	cutoffTime := time.Now().Add(-24 * time.Hour)

	expired, err := redisClient.ZRangeByScore(ctx, "logs:queue", &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%d", cutoffTime.Unix()),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to get expired logs: %v", err)
	}

	var processed, failed int
	for _, logKey := range expired {
		logData, err := redisClient.Get(ctx, logKey).Result()
		if err != nil {
			if err != redis.Nil {
				logrus.WithError(err).Errorf("Failed to get log data for key: %s", logKey)
				failed++
			}
			continue
		}

		var activityLog models.ActivityLog
		if err := json.Unmarshal([]byte(logData), &activityLog); err != nil {
			logrus.WithError(err).Errorf("Failed to unmarshal log data for key: %s", logKey)
			failed++
			continue
		}

		if err := database.DB.Create(&activityLog).Error; err != nil {
			logrus.WithError(err).Error("Failed to save log to database")
			failed++
			continue
		}

		pipeline := redisClient.Pipeline()
		pipeline.Del(ctx, logKey)
		pipeline.ZRem(ctx, "logs:queue", logKey)
		if _, err := pipeline.Exec(ctx); err != nil {
			logrus.WithError(err).Errorf("Failed to remove log from cache: %s", logKey)
		}
		processed++
	}

	if processed > 0 || failed > 0 {
		logrus.Infof("Flushed %d cached logs to database, %d errors", processed, failed)
	}
	return nil
}

// ArchiveOldEvents archives attendance events older than the given age to S3
// and removes them from the database. Only stamped events are eligible, so
// an open join can never disappear from the live log.
func (as *ArchiveService) ArchiveOldEvents(daysOld int) error {
	if daysOld < 90 {
		return fmt.Errorf("minimum event archive age is 90 days")
	}
	cutoffDate := time.Now().AddDate(0, 0, -daysOld)

	batchSize := 1000
	var archived []ArchivedEvent

	for offset := 0; ; offset += batchSize {
		var events []models.MeetingAttendanceEvent
		err := database.DB.
			Where("event_timestamp < ?", cutoffDate).
			Where("event_type IN ? OR left_at IS NOT NULL",
				[]string{models.AttendanceEventLeave, models.AttendanceEventAborted}).
			Limit(batchSize).
			Offset(offset).
			Find(&events).Error
		if err != nil {
			return fmt.Errorf("failed to fetch events for archiving: %v", err)
		}
		if len(events) == 0 {
			break
		}

		for _, ev := range events {
			item := ArchivedEvent{
				ID:              ev.ID,
				EventID:         ev.EventID,
				EventType:       ev.EventType,
				EventTimestamp:  ev.EventTimestamp,
				SessionKind:     ev.SessionKind,
				SessionID:       ev.SessionID,
				UserID:          ev.UserID,
				ParticipantSID:  ev.ParticipantSID,
				LeftAt:          ev.LeftAt,
				DurationMinutes: ev.DurationMinutes,
				LeaveEventID:    ev.LeaveEventID,
			}
			if !ev.RawPayload.IsNull() {
				var payload map[string]any
				if err := json.Unmarshal(ev.RawPayload, &payload); err == nil {
					item.RawPayload = payload
				}
			}
			archived = append(archived, item)
		}
	}

	if len(archived) == 0 {
		logrus.Info("No attendance events to archive")
		return nil
	}
	logrus.Infof("Archiving %d attendance events older than %s", len(archived), cutoffDate.Format("2006-01-02"))

	fileName := fmt.Sprintf("attendance_events_%s.zip", cutoffDate.Format("2006-01-02"))
	buf, err := createZipArchive("attendance_events.json", fileName, len(archived), archived)
	if err != nil {
		return fmt.Errorf("failed to create ZIP archive: %v", err)
	}

	s3Key := fmt.Sprintf("events/archived/%d/%02d/%s", cutoffDate.Year(), cutoffDate.Month(), fileName)
	if err := as.uploadToS3(s3Key, buf); err != nil {
		return fmt.Errorf("failed to upload archive to S3: %v", err)
	}
	logrus.Infof("Successfully uploaded archive to S3: %s", s3Key)

	result := database.DB.Unscoped().
		Where("event_timestamp < ?", cutoffDate).
		Where("event_type IN ? OR left_at IS NOT NULL",
			[]string{models.AttendanceEventLeave, models.AttendanceEventAborted}).
		Delete(&models.MeetingAttendanceEvent{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete archived events from database: %v", result.Error)
	}
	logrus.Infof("Deleted %d archived events from database", result.RowsAffected)

	metadata := models.EventArchive{
		FileName:    fileName,
		S3Key:       s3Key,
		StartDate:   archived[0].EventTimestamp,
		EndDate:     cutoffDate,
		RecordCount: len(archived),
		FileSize:    int64(buf.Len()),
		Status:      "completed",
	}
	if err := database.DB.Create(&metadata).Error; err != nil {
		logrus.WithError(err).Error("Failed to save archive metadata")
	}
	return nil
}

// ArchiveOldActivityLogs archives activity logs older than the given age.
func (as *ArchiveService) ArchiveOldActivityLogs(daysOld int) error {
	if daysOld < 7 {
		return fmt.Errorf("minimum archive age is 7 days for safety")
	}
	cutoffDate := time.Now().AddDate(0, 0, -daysOld)

	var logs []models.ActivityLog
	if err := database.DB.Where("created_at < ?", cutoffDate).Find(&logs).Error; err != nil {
		return fmt.Errorf("failed to fetch logs for archiving: %v", err)
	}
	if len(logs) == 0 {
		return nil
	}

	fileName := fmt.Sprintf("activity_logs_%s.zip", cutoffDate.Format("2006-01-02"))
	buf, err := createZipArchive("activity_logs.json", fileName, len(logs), logs)
	if err != nil {
		return fmt.Errorf("failed to create ZIP archive: %v", err)
	}

	s3Key := fmt.Sprintf("logs/archived/%d/%02d/%s", cutoffDate.Year(), cutoffDate.Month(), fileName)
	if err := as.uploadToS3(s3Key, buf); err != nil {
		return fmt.Errorf("failed to upload archive to S3: %v", err)
	}

	result := database.DB.Unscoped().Where("created_at < ?", cutoffDate).Delete(&models.ActivityLog{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete archived logs from database: %v", result.Error)
	}
	logrus.Infof("Archived %d activity logs to %s", len(logs), s3Key)
	return nil
}

// createZipArchive packs records plus a metadata file into a ZIP buffer.
func createZipArchive(entryName, fileName string, recordCount int, records any) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	zipWriter := zip.NewWriter(buf)

	dataFile, err := zipWriter.Create(entryName)
	if err != nil {
		return nil, fmt.Errorf("failed to create data file in ZIP: %v", err)
	}
	encoder := json.NewEncoder(dataFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(map[string]any{
		"export_date":    time.Now().UTC(),
		"record_count":   recordCount,
		"format_version": "1.0",
		"records":        records,
	}); err != nil {
		return nil, fmt.Errorf("failed to encode records to JSON: %v", err)
	}

	metadataFile, err := zipWriter.Create("metadata.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata file in ZIP: %v", err)
	}
	if err := json.NewEncoder(metadataFile).Encode(map[string]any{
		"file_name":      fileName,
		"created_at":     time.Now().UTC(),
		"record_count":   recordCount,
		"schema_version": "1.0",
	}); err != nil {
		return nil, fmt.Errorf("failed to encode metadata to JSON: %v", err)
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close ZIP writer: %v", err)
	}
	return buf, nil
}

// uploadToS3 uploads data to the archive bucket.
func (as *ArchiveService) uploadToS3(key string, data *bytes.Buffer) error {
	if as.awsConfig.Region == "" {
		return fmt.Errorf("AWS not configured")
	}
	s3Client := s3.NewFromConfig(as.awsConfig)
	bucketName := os.Getenv("S3_BUCKET_NAME")

	_, err := s3Client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket:      &bucketName,
		Key:         &key,
		Body:        bytes.NewReader(data.Bytes()),
		ContentType: aws.String("application/zip"),
	})
	return err
}

// downloadFromS3 downloads a key from the archive bucket.
func (as *ArchiveService) downloadFromS3(key string) (io.ReadCloser, error) {
	if as.awsConfig.Region == "" {
		return nil, fmt.Errorf("AWS not configured")
	}
	s3Client := s3.NewFromConfig(as.awsConfig)
	bucketName := os.Getenv("S3_BUCKET_NAME")

	result, err := s3Client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: &bucketName,
		Key:    &key,
	})
	if err != nil {
		return nil, err
	}
	return result.Body, nil
}

// GetArchives lists archive metadata, newest first.
func (as *ArchiveService) GetArchives() ([]models.EventArchive, error) {
	var archives []models.EventArchive
	if err := database.DB.Order("created_at DESC").Find(&archives).Error; err != nil {
		return nil, fmt.Errorf("failed to retrieve archives: %v", err)
	}
	return archives, nil
}

// DownloadArchive streams one archive file from S3.
func (as *ArchiveService) DownloadArchive(archiveID uint) (io.ReadCloser, string, error) {
	var archive models.EventArchive
	if err := database.DB.First(&archive, archiveID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, "", fmt.Errorf("archive not found")
		}
		return nil, "", fmt.Errorf("failed to retrieve archive: %v", err)
	}
	reader, err := as.downloadFromS3(archive.S3Key)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download archive from S3: %v", err)
	}
	return reader, archive.FileName, nil
}
