// Package model はドメインモデルを定義する。
package model

import "time"

// Program は大学院ファイナンスプログラムを表す。
// カタログ同期によって作成・更新され、アプリケーションからは読み取り専用。
type Program struct {
	ID             string
	Name           string
	School         string
	City           string
	Country        string
	Latitude       float64
	Longitude      float64
	Website        string
	DurationMonths int
	TuitionAmount  int // 最小通貨単位（セント）
	TuitionCurrency string
	Description    string // サニタイズ済みHTML
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProgramView はユーザーが特定プログラムの詳細を閲覧済みであることを示す
// 冪等性マーカー。(user_id, program_id)の組はDB制約で一意。
// 同一プログラムの再閲覧はクォータを消費しない。
type ProgramView struct {
	ID        string
	UserID    string
	ProgramID string
	ViewedAt  time.Time
}
