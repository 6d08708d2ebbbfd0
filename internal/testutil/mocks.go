// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/klocfix/klocfix/internal/core/models"
	"github.com/klocfix/klocfix/internal/oracle"
)

// MockDetectionOracle mocks the classification oracle
type MockDetectionOracle struct {
	mock.Mock
}

func (m *MockDetectionOracle) DetectRules(ctx context.Context, code string) (oracle.DetectionResult, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(oracle.DetectionResult), args.Error(1)
}

// MockFixOracle mocks the remediation oracle
type MockFixOracle struct {
	mock.Mock
}

func (m *MockFixOracle) ProposeFix(ctx context.Context, mode models.Mode, ruleID, ruleText, filename, code string) (string, error) {
	args := m.Called(ctx, mode, ruleID, ruleText, filename, code)
	return args.String(0), args.Error(1)
}

// MockTracker mocks the change tracker
type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) Snapshot(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockTracker) Commit(ctx context.Context, message string) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockTracker) DiffSince(ctx context.Context, ref string) (string, []string, error) {
	args := m.Called(ctx, ref)
	var files []string
	if args.Get(1) != nil {
		files = args.Get(1).([]string)
	}
	return args.String(0), files, args.Error(2)
}

// MockTool mocks the external editing tool
type MockTool struct {
	mock.Mock
}

func (m *MockTool) Run(ctx context.Context, file, message string) error {
	args := m.Called(ctx, file, message)
	return args.Error(0)
}
