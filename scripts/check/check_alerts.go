package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"

	_ "github.com/lib/pq"
)

func main() {
	// 从环境变量获取数据库连接信息，如果没有则使用默认值
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		getEnv("DB_HOST", "localhost"),
		parseInt(getEnv("DB_PORT", "5432"), 5432),
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_NAME", "healthguard"),
		getEnv("DB_SSLMODE", "disable"),
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// 1. 最近告警（按严重级别统计）
	fmt.Println("1. Alerts by severity (last 7 days)")
	query1 := `
		SELECT severity, COUNT(*) as cnt, MAX(timestamp) as last_at
		FROM alerts
		WHERE timestamp >= NOW() - INTERVAL '7 days'
		GROUP BY severity
		ORDER BY severity;
	`
	rows1, err := db.Query(query1)
	if err != nil {
		log.Fatalf("Failed to query alerts: %v", err)
	}
	defer rows1.Close()

	for rows1.Next() {
		var severity, cnt int
		var lastAt sql.NullString
		if err := rows1.Scan(&severity, &cnt, &lastAt); err != nil {
			log.Fatalf("Failed to scan alert row: %v", err)
		}
		fmt.Printf("  severity=%d count=%d last=%s\n", severity, cnt, lastAt.String)
	}

	// 2. 审计链完整性：投递审计必须有对应的告警记录
	fmt.Println("2. Delivery audit entries without matching alert day")
	query2 := `
		SELECT a.action_id, a.type, a.patient_id_hash, a.timestamp
		FROM audit_entries a
		WHERE a.type LIKE 'severity_%_delivery'
		  AND NOT EXISTS (
			SELECT 1 FROM alerts al
			WHERE al.timestamp::date = a.timestamp::date
		  )
		ORDER BY a.timestamp DESC
		LIMIT 20;
	`
	rows2, err := db.Query(query2)
	if err != nil {
		log.Fatalf("Failed to query audit entries: %v", err)
	}
	defer rows2.Close()

	orphans := 0
	for rows2.Next() {
		var actionID, entryType, patientHash, ts string
		if err := rows2.Scan(&actionID, &entryType, &patientHash, &ts); err != nil {
			log.Fatalf("Failed to scan audit row: %v", err)
		}
		fmt.Printf("  action_id=%s type=%s patient=%s at=%s\n", actionID, entryType, patientHash, ts)
		orphans++
	}
	if orphans == 0 {
		fmt.Println("  none (audit chain consistent)")
	}

	// 3. 擦除请求墓碑
	fmt.Println("3. Erasure tombstones")
	query3 := `
		SELECT action_id, timestamp
		FROM audit_entries
		WHERE type = 'erasure_request'
		ORDER BY timestamp DESC
		LIMIT 10;
	`
	rows3, err := db.Query(query3)
	if err != nil {
		log.Fatalf("Failed to query erasure entries: %v", err)
	}
	defer rows3.Close()

	for rows3.Next() {
		var actionID, ts string
		if err := rows3.Scan(&actionID, &ts); err != nil {
			log.Fatalf("Failed to scan erasure row: %v", err)
		}
		fmt.Printf("  action_id=%s at=%s\n", actionID, ts)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseInt(s string, fallback int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}
