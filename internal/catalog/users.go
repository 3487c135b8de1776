package catalog

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-courseware/internal/platform/apperr"
)

// Memory store

func (s *MemoryStore) CreateUser(ctx context.Context, u *User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return apperr.Conflict("user %s already exists", u.ID)
	}
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found: %s", id)
	}
	return &u, nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return apperr.NotFound("user not found: %s", id)
	}
	for _, e := range s.enrollments {
		if e.UserID == id {
			return apperr.Conflict("user has enrollments")
		}
	}
	for _, c := range s.certificates {
		if c.UserID == id {
			return apperr.Conflict("user has certificates")
		}
	}
	delete(s.users, id)
	return nil
}

func (s *MemoryStore) CreateEnrollment(ctx context.Context, e *Enrollment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[e.UserID]; !ok {
		return apperr.NotFound("user not found: %s", e.UserID)
	}
	if _, ok := s.courses[e.CourseID]; !ok {
		return apperr.NotFound("course not found: %s", e.CourseID)
	}
	for _, existing := range s.enrollments {
		if existing.UserID == e.UserID && existing.CourseID == e.CourseID {
			return apperr.Conflict("user %s already enrolled in course %s", e.UserID, e.CourseID)
		}
	}
	s.enrollments[e.ID] = *e
	return nil
}

func (s *MemoryStore) DeleteEnrollment(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.enrollments[id]; !ok {
		return apperr.NotFound("enrollment not found: %s", id)
	}
	delete(s.enrollments, id)
	return nil
}

func (s *MemoryStore) ListEnrollments(ctx context.Context, courseID uuid.UUID) ([]Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []Enrollment{}
	for _, e := range s.enrollments {
		if e.CourseID == courseID {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b Enrollment) int {
		return compareEntity(0, 0, a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) CreateCertificate(ctx context.Context, c *Certificate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[c.UserID]; !ok {
		return apperr.NotFound("user not found: %s", c.UserID)
	}
	if _, ok := s.courses[c.CourseID]; !ok {
		return apperr.NotFound("course not found: %s", c.CourseID)
	}
	for _, existing := range s.certificates {
		if existing.Number == c.Number {
			return apperr.Conflict("certificate number in use: %s", c.Number)
		}
	}
	s.certificates[c.ID] = *c
	return nil
}

func (s *MemoryStore) DeleteCertificate(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.certificates[id]; !ok {
		return apperr.NotFound("certificate not found: %s", id)
	}
	delete(s.certificates, id)
	return nil
}

// Service

func (s *Service) CreateUser(ctx context.Context, orgID uuid.UUID, name, email string) (*User, error) {
	fields := map[string]string{}
	if orgID == uuid.Nil {
		fields["org_id"] = "required"
	}
	if strings.TrimSpace(name) == "" {
		fields["name"] = "required"
	}
	if !strings.Contains(email, "@") {
		fields["email"] = "must be an email address"
	}
	if len(fields) > 0 {
		return nil, apperr.ValidationFields("missing or invalid fields", fields)
	}
	u := &User{
		ID:        uuid.New(),
		OrgID:     orgID,
		Name:      strings.TrimSpace(name),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, apperr.Storage("create user", err)
	}
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.store.GetUser(ctx, id)
	return u, apperr.Storage("get user", err)
}

// DeleteUser refuses while the user still has enrollments or certificates.
func (s *Service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return apperr.Storage("delete user", err)
	}
	s.logger.Info("user deleted", "user_id", id)
	return nil
}

func (s *Service) Enroll(ctx context.Context, userID, courseID uuid.UUID) (*Enrollment, error) {
	e := &Enrollment{
		ID:        uuid.New(),
		UserID:    userID,
		CourseID:  courseID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateEnrollment(ctx, e); err != nil {
		return nil, apperr.Storage("create enrollment", err)
	}
	return e, nil
}

func (s *Service) Unenroll(ctx context.Context, enrollmentID uuid.UUID) error {
	return apperr.Storage("delete enrollment", s.store.DeleteEnrollment(ctx, enrollmentID))
}

func (s *Service) Enrollments(ctx context.Context, courseID uuid.UUID) ([]Enrollment, error) {
	es, err := s.store.ListEnrollments(ctx, courseID)
	return es, apperr.Storage("list enrollments", err)
}

// IssueCertificate records a certificate. Number is generated from the id
// when empty.
func (s *Service) IssueCertificate(ctx context.Context, userID, courseID uuid.UUID, number string) (*Certificate, error) {
	c := &Certificate{
		ID:       uuid.New(),
		UserID:   userID,
		CourseID: courseID,
		Number:   strings.TrimSpace(number),
		IssuedAt: s.now().UTC(),
	}
	if c.Number == "" {
		c.Number = "CERT-" + strings.ToUpper(strings.ReplaceAll(c.ID.String(), "-", "")[:12])
	}
	if err := s.store.CreateCertificate(ctx, c); err != nil {
		return nil, apperr.Storage("create certificate", err)
	}
	return c, nil
}

func (s *Service) RevokeCertificate(ctx context.Context, id uuid.UUID) error {
	return apperr.Storage("delete certificate", s.store.DeleteCertificate(ctx, id))
}
