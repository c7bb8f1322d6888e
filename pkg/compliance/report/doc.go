// Package report builds point-in-time compliance reports: record counts by
// framework, risk level and PII type, open reviews, upcoming expirations,
// deletion requests by status with overdue ones, audit volume by compliance
// impact and the configured retention policies.
package report
