// Package utils provides small helpers shared by the stores: conversion of raw
// driver values and slice chunking for parameter-limited IN lists.
package utils
